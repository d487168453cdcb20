package shared

import "fmt"

// ReconcileLockKey builds the redis key guarding one reconciliation run per location kind.
func ReconcileLockKey(kind string) string {
	return fmt.Sprintf("stockledger:reconcile:%s:lock", kind)
}
