// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentIndexTask represents the data structure for a document indexing job.
// Reindex 为 true 时表示对 ERROR/INDEXED 文档的重新索引请求，
// 管道同样从 PROCESSING 全量重算。
type DocumentIndexTask struct {
	DocumentID string `json:"document_id"`
	ClientID   string `json:"client_id"`
	FileName   string `json:"file_name"`
	StorageKey string `json:"storage_key"`
	Reindex    bool   `json:"reindex"`
}
