package model

// ItemKind discriminates the Item variant.
type ItemKind string

const (
	ItemFolder  ItemKind = "folder"
	ItemContent ItemKind = "content"
)

// Item is one tile of a navigation level: exactly one of Folder or Content is set,
// as indicated by Kind.
type Item struct {
	Kind    ItemKind
	Folder  *Folder
	Content *Content
}

// FolderItem wraps a folder as an Item.
func FolderItem(f Folder) Item {
	return Item{Kind: ItemFolder, Folder: &f}
}

// ContentItem wraps a content item as an Item.
func ContentItem(c Content) Item {
	return Item{Kind: ItemContent, Content: &c}
}

// ID returns the wrapped record's identifier.
func (i Item) ID() string {
	switch i.Kind {
	case ItemFolder:
		return i.Folder.ID
	case ItemContent:
		return i.Content.ID
	}
	return ""
}

// Name returns the wrapped record's display name.
func (i Item) Name() string {
	switch i.Kind {
	case ItemFolder:
		return i.Folder.Name
	case ItemContent:
		return i.Content.Name
	}
	return ""
}

// Description returns the wrapped record's tile subtitle.
func (i Item) Description() string {
	switch i.Kind {
	case ItemFolder:
		return i.Folder.Description()
	case ItemContent:
		return i.Content.Description()
	}
	return ""
}
