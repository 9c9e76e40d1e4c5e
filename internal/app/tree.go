package app

import (
	"time"

	"notebook/api/internal/store"
)

// TreeNode is one entry of the sidebar. Folders list their subfolders first,
// then their pages, each group in position order.
type TreeNode struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Name      string     `json:"name"`
	ParentID  *string    `json:"parent_id"`
	Position  int        `json:"position"`
	UpdatedAt time.Time  `json:"updated_at"`
	Children  []TreeNode `json:"children,omitempty"`
}

// buildTree nests folders and pages that arrive ordered by (parent, position).
// Items whose parent is missing are attached to the root.
func buildTree(folders []store.Folder, pages []store.Page) []TreeNode {
	folderIDs := make(map[string]bool, len(folders))
	for _, folder := range folders {
		folderIDs[folder.ID] = true
	}
	key := func(parentID *string) string {
		if parentID == nil || !folderIDs[*parentID] {
			return ""
		}
		return *parentID
	}

	childFolders := map[string][]store.Folder{}
	for _, folder := range folders {
		k := key(folder.ParentID)
		childFolders[k] = append(childFolders[k], folder)
	}
	childPages := map[string][]store.Page{}
	for _, page := range pages {
		k := key(page.ParentID)
		childPages[k] = append(childPages[k], page)
	}

	var build func(parent string, depth int) []TreeNode
	build = func(parent string, depth int) []TreeNode {
		nodes := make([]TreeNode, 0, len(childFolders[parent])+len(childPages[parent]))
		for _, folder := range childFolders[parent] {
			node := TreeNode{
				ID:        folder.ID,
				Type:      "folder",
				Name:      folder.Name,
				ParentID:  folder.ParentID,
				Position:  folder.Position,
				UpdatedAt: folder.UpdatedAt,
			}
			if depth < maxTreeDepth {
				node.Children = build(folder.ID, depth+1)
			}
			nodes = append(nodes, node)
		}
		for _, page := range childPages[parent] {
			nodes = append(nodes, TreeNode{
				ID:        page.ID,
				Type:      "page",
				Name:      page.Title,
				ParentID:  page.ParentID,
				Position:  page.Position,
				UpdatedAt: page.UpdatedAt,
			})
		}
		return nodes
	}
	return build("", 0)
}

const maxTreeDepth = 256

// descendants lists the pages and folders at and below folderID.
func descendants(tree []TreeNode, folderID string) (pageIDs, folderIDs []string) {
	var collect func(nodes []TreeNode, inside bool)
	collect = func(nodes []TreeNode, inside bool) {
		for _, node := range nodes {
			switch {
			case node.Type == "folder" && (inside || node.ID == folderID):
				folderIDs = append(folderIDs, node.ID)
				collect(node.Children, true)
			case node.Type == "folder":
				collect(node.Children, false)
			case inside:
				pageIDs = append(pageIDs, node.ID)
			}
		}
	}
	collect(tree, false)
	return pageIDs, folderIDs
}
