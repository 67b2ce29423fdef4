package navigation

import "github.com/edumaster/catalogd/internal/model"

// Position tags a stored level relative to the active index.
type Position string

const (
	Above   Position = "above"   // already left, index < active
	Current Position = "current" // index == active
	Below   Position = "below"   // staged for a forward transition, index == active+1
	Hidden  Position = "hidden"
)

// PositionOf tags index i against the active index.
func PositionOf(i, active int) Position {
	switch {
	case i < active:
		return Above
	case i == active:
		return Current
	case i == active+1:
		return Below
	default:
		return Hidden
	}
}

// Level is the materialised view of one folder's children. Levels are never
// mutated after construction.
type Level struct {
	Folders []model.Folder
	Content []model.Content
	Title   string
	// Parent is the folder that produced the level; nil for the root.
	Parent *model.Folder
}

// RootLevel builds the root level: all given folders, no content.
func RootLevel(folders []model.Folder, title string) Level {
	if folders == nil {
		folders = []model.Folder{}
	}
	return Level{Folders: folders, Content: []model.Content{}, Title: title}
}

// LevelFor builds the level shown after entering f. Missing child collections
// count as empty.
func LevelFor(f model.Folder) Level {
	parent := f
	return Level{
		Folders: f.Children(),
		Content: f.Items(),
		Title:   f.Name,
		Parent:  &parent,
	}
}

// Empty reports whether the level has neither folders nor content.
func (l Level) Empty() bool {
	return len(l.Folders) == 0 && len(l.Content) == 0
}

// Items returns folders first, then content, as tagged items.
func (l Level) Items() []model.Item {
	items := make([]model.Item, 0, len(l.Folders)+len(l.Content))
	for _, f := range l.Folders {
		items = append(items, model.FolderItem(f))
	}
	for _, c := range l.Content {
		items = append(items, model.ContentItem(c))
	}
	return items
}

// LevelView is a stored level with its rendering position.
type LevelView struct {
	Index       int
	Level       Level
	Position    Position
	Interactive bool
	Empty       bool
}

// State is a point-in-time copy of the stack.
type State struct {
	Levels        []LevelView
	Active        int
	Transitioning bool
}
