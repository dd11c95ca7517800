package preset

import "fmt"

// Defaults returns the built-in social platform cover sizes.
func Defaults() []Preset {
	return []Preset{
		{ID: "xiaohongshu-cover", Name: "Xiaohongshu Cover", Width: 1080, Height: 1440, Description: "3:4"},
		{ID: "xiaohongshu-square", Name: "Xiaohongshu Square", Width: 1080, Height: 1080, Description: "1:1"},
		{ID: "douyin-cover", Name: "Douyin Cover", Width: 1080, Height: 1920, Description: "9:16"},
		{ID: "douyin-video", Name: "Douyin Video", Width: 1920, Height: 1080, Description: "16:9"},
		{ID: "weibo-cover", Name: "Weibo Cover", Width: 1920, Height: 1080, Description: "16:9"},
		{ID: "weibo-square", Name: "Weibo Square", Width: 1080, Height: 1080, Description: "1:1"},
		{ID: "bilibili-cover", Name: "Bilibili Cover", Width: 1920, Height: 1080, Description: "16:9"},
		{ID: "bilibili-vertical", Name: "Bilibili Vertical", Width: 1080, Height: 1920, Description: "9:16"},
		{ID: "instagram-square", Name: "IG Square", Width: 1080, Height: 1080, Description: "1:1"},
		{ID: "instagram-portrait", Name: "IG Portrait", Width: 1080, Height: 1350, Description: "4:5"},
		{ID: "youtube-thumbnail", Name: "YouTube", Width: 1280, Height: 720, Description: "16:9"},
	}
}

// Default returns a table built from Defaults.
func Default() *Table {
	t, err := NewTable(Defaults())
	if err != nil {
		panic("preset: invalid built-in table: " + err.Error())
	}
	return t
}

// CustomID prefixes the IDs of caller-sized targets.
const CustomID = "custom"

type customSize struct {
	Width  int `validate:"min=100,max=4096"`
	Height int `validate:"min=100,max=4096"`
}

// Custom returns an ad-hoc preset for a caller-chosen size of 100..4096
// pixels per side. Its ID is "custom-<w>x<h>".
func Custom(width, height int) (Preset, error) {
	if err := validate.Struct(customSize{Width: width, Height: height}); err != nil {
		return Preset{}, fmt.Errorf("%w %q: %w", ErrInvalidPreset, CustomID, err)
	}
	return Preset{
		ID:          fmt.Sprintf("%s-%dx%d", CustomID, width, height),
		Name:        fmt.Sprintf("Custom %dx%d", width, height),
		Width:       width,
		Height:      height,
		Description: fmt.Sprintf("%dx%d", width, height),
	}, nil
}
