package protocol

// Status 播放状态
type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// PlaybackState 离屏文档持有的唯一权威播放状态
type PlaybackState struct {
	SourceURL string `json:"sourceUrl,omitempty"` // 空字符串表示未加载音源
	Status    Status `json:"status"`
	Loop      bool   `json:"loop"`
}

// IdleState 新建离屏文档时的初始状态：无音源、暂停
func IdleState() PlaybackState {
	return PlaybackState{Status: StatusPaused}
}

// Event 把状态转换成发往后台的状态事件
func (s PlaybackState) Event() *Message {
	typ := TypeAudioPaused
	if s.SourceURL != "" && s.Status == StatusPlaying {
		typ = TypeAudioPlaying
	}
	return &Message{
		Target: RoleBackground,
		Source: RoleOffscreen,
		Type:   typ,
		URL:    s.SourceURL,
	}
}

// IdleEvent 离屏文档不存在时后台自行合成的应答
func IdleEvent() *Message {
	return &Message{
		Target: RolePopup,
		Source: RoleBackground,
		Type:   TypeAudioPaused,
	}
}
