package hierarchy

// isAncestorOrSelf walks up from start and reports whether id is met.
// Stored data may already contain a loop, so visited ids stop the walk.
func isAncestorOrSelf(t *tree, id, start string) bool {
	visited := make(map[string]bool)
	for current := start; current != ""; {
		if current == id {
			return true
		}
		if visited[current] {
			return false
		}
		visited[current] = true

		e, ok := t.lookup(current)
		if !ok {
			return false
		}
		current = e.ParentID
	}
	return false
}

// cascadeOrder returns root and every transitive descendant, each child
// listed before its parent
func cascadeOrder(entities []Entity, root string) []string {
	children := make(map[string][]string)
	for _, e := range entities {
		if e.ParentID != "" {
			children[e.ParentID] = append(children[e.ParentID], e.ID)
		}
	}

	var order []string
	visited := make(map[string]bool)
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, child := range children[id] {
			walk(child)
		}
		order = append(order, id)
	}
	walk(root)
	return order
}

// Descendants returns the ids of every transitive descendant of id in entities
func Descendants(entities []Entity, id string) []string {
	order := cascadeOrder(entities, id)
	return order[:len(order)-1]
}

// Ancestors returns the parent chain of id from the nearest parent up to
// the top-level entity
func Ancestors(entities []Entity, id string) []Entity {
	t := &tree{entities: entities}
	t.reindex()

	var out []Entity
	visited := map[string]bool{id: true}
	e, ok := t.lookup(id)
	for ok && e.ParentID != "" && !visited[e.ParentID] {
		visited[e.ParentID] = true
		e, ok = t.lookup(e.ParentID)
		if ok {
			out = append(out, e)
		}
	}
	return out
}
