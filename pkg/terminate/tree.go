package terminate

// walkTree returns the descendants of root breadth-first. Cycles in the
// parent map are tolerated.
func walkTree(children map[int][]int, root int) []int {
	var out []int
	seen := map[int]bool{root: true}
	queue := []int{root}
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		for _, c := range children[pid] {
			if seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out
}

// killTree kills root and then every pid in descendants, a snapshot taken
// before root was signalled. Descendants are killed even when root is
// already gone: orphans keep their ports. The result is root's.
func killTree(root int, descendants []int, kill func(pid int) error) error {
	err := kill(root)
	for _, pid := range descendants {
		_ = kill(pid)
	}
	return err
}
