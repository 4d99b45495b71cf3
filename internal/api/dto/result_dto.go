package dto

type ListResultsRequest struct {
	RunID    string `form:"run_id"`
	Backend  string `form:"backend"`
	FileName string `form:"file_name"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListResultsResponse struct {
	Results    []ResultDTO `json:"results"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type ResultDTO struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	FileName   string `json:"file_name"`
	Backend    string `json:"backend"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	ReceivedAt string `json:"received_at"`
}

type SummaryRequest struct {
	RunID string `form:"run_id"`
}

type SummaryResponse struct {
	RunID    string              `json:"run_id,omitempty"`
	Backends []BackendSummaryDTO `json:"backends"`
}

type BackendSummaryDTO struct {
	Backend        string  `json:"backend"`
	Count          int64   `json:"count"`
	TotalElapsedMs int64   `json:"total_elapsed_ms"`
	AvgElapsedMs   float64 `json:"avg_elapsed_ms"`
	MinElapsedMs   int64   `json:"min_elapsed_ms"`
	MaxElapsedMs   int64   `json:"max_elapsed_ms"`
}

type PublishResponse struct {
	Folder    string `json:"folder"`
	Exchange  string `json:"exchange"`
	Published int    `json:"published"`
}
