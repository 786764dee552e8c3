package model

// Song 歌曲目录中的一首曲目
type Song struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	URL    string `json:"url"`
	// Object MinIO 中的对象名，设置后 URL 由预签名生成
	Object string `json:"object,omitempty"`
}
