package rediskey

import "fmt"

const (
	Namespace      = "promptcron"
	JobLeasePrefix = "job:lease"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildJobLeaseKey returns "promptcron:job:lease:{jobID}"
func BuildJobLeaseKey(jobID string) string {
	return NamespaceKey(Namespace, NamespaceKey(JobLeasePrefix, jobID))
}
