package catalog

import (
	"sync"

	"FocusFM/model"
)

// Playlist 弹窗使用的播放列表游标，前后切换在两端循环
type Playlist struct {
	mu    sync.Mutex
	songs []model.Song
	index int
}

// NewPlaylist 创建播放列表，游标指向第一首
func NewPlaylist(songs []model.Song) (*Playlist, error) {
	if len(songs) == 0 {
		return nil, ErrEmpty
	}
	return &Playlist{songs: append([]model.Song(nil), songs...)}, nil
}

func (p *Playlist) Len() int {
	return len(p.songs)
}

// Current 当前歌曲
func (p *Playlist) Current() model.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.songs[p.index]
}

// Index 当前位置
func (p *Playlist) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Next 前进一首，到末尾回到第一首
func (p *Playlist) Next() model.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = (p.index + 1) % len(p.songs)
	return p.songs[p.index]
}

// Prev 后退一首，到开头跳到最后一首
func (p *Playlist) Prev() model.Song {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = (p.index - 1 + len(p.songs)) % len(p.songs)
	return p.songs[p.index]
}

// Seek 把游标移动到 URL 对应的歌曲，找不到时不移动
func (p *Playlist) Seek(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.songs {
		if s.URL == url {
			p.index = i
			return true
		}
	}
	return false
}

// Songs 返回歌曲副本
func (p *Playlist) Songs() []model.Song {
	return append([]model.Song(nil), p.songs...)
}
