package model

// Owner 药店老板
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Pharmacy 药店
type Pharmacy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Medicine 药品（仅作为外部目录服务的数据契约，不在本服务持久化）
type Medicine struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}
