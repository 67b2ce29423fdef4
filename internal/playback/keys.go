package playback

// Key codes of the keyboard shortcuts.
const (
	KeySpace      = "Space"
	KeyArrowLeft  = "ArrowLeft"
	KeyArrowRight = "ArrowRight"
	KeyArrowUp    = "ArrowUp"
	KeyArrowDown  = "ArrowDown"
	KeyM          = "KeyM"
	KeyF          = "KeyF"
)

// HandleKey runs the shortcut bound to code. handled reports whether the key
// is a shortcut, in which case the platform default must be prevented; err is
// the shortcut action's error.
func (e *Engine) HandleKey(code string) (handled bool, err error) {
	if e.Closed() {
		return false, ErrClosed
	}
	switch code {
	case KeySpace:
		return true, e.TogglePlay()
	case KeyArrowLeft:
		return true, e.SkipBackward()
	case KeyArrowRight:
		return true, e.SkipForward()
	case KeyArrowUp:
		return true, e.ChangeVolume(VolumeStep)
	case KeyArrowDown:
		return true, e.ChangeVolume(-VolumeStep)
	case KeyM:
		return true, e.ToggleMute()
	case KeyF:
		return true, e.ToggleFullscreen()
	default:
		return false, nil
	}
}
