package accounting

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Chart is an arena view of a company's chart of accounts. Parent links are
// resolved to slice indexes once, so ancestor walks and cycle checks are O(depth).
type Chart struct {
	nodes []chartNode
	index map[int64]int
}

type chartNode struct {
	account  Account
	parent   int
	depth    int
	children []int
}

// NewChart indexes accounts. A parent outside the set or a cycle in persisted
// data is reported as ErrIntegrity.
func NewChart(accounts []Account) (*Chart, error) {
	c := &Chart{
		nodes: make([]chartNode, len(accounts)),
		index: make(map[int64]int, len(accounts)),
	}
	for i, acc := range accounts {
		c.nodes[i] = chartNode{account: acc, parent: -1, depth: -1}
		c.index[acc.ID] = i
	}
	for i := range c.nodes {
		parentID := c.nodes[i].account.ParentID
		if parentID == nil {
			continue
		}
		p, ok := c.index[*parentID]
		if !ok {
			return nil, fmt.Errorf("%w: account %d has unknown parent %d", ErrIntegrity, c.nodes[i].account.ID, *parentID)
		}
		c.nodes[i].parent = p
		c.nodes[p].children = append(c.nodes[p].children, i)
	}
	for i := range c.nodes {
		if err := c.resolveDepth(i); err != nil {
			return nil, err
		}
	}
	for i := range c.nodes {
		children := c.nodes[i].children
		sort.Slice(children, func(a, b int) bool {
			return c.nodes[children[a]].account.Code < c.nodes[children[b]].account.Code
		})
	}
	return c, nil
}

// resolveDepth walks up until a node with known depth, bounded by len(nodes).
func (c *Chart) resolveDepth(i int) error {
	if c.nodes[i].depth >= 0 {
		return nil
	}
	path := make([]int, 0, 8)
	cur := i
	for cur >= 0 && c.nodes[cur].depth < 0 {
		path = append(path, cur)
		if len(path) > len(c.nodes) {
			return fmt.Errorf("%w: cycle through account %d", ErrIntegrity, c.nodes[i].account.ID)
		}
		cur = c.nodes[cur].parent
	}
	base := -1
	if cur >= 0 {
		base = c.nodes[cur].depth
	}
	for k := len(path) - 1; k >= 0; k-- {
		base++
		c.nodes[path[k]].depth = base
	}
	return nil
}

// Len returns the number of accounts.
func (c *Chart) Len() int { return len(c.nodes) }

// Account returns the account with id.
func (c *Chart) Account(id int64) (Account, bool) {
	i, ok := c.index[id]
	if !ok {
		return Account{}, false
	}
	return c.nodes[i].account, true
}

// Depth returns 0 for roots.
func (c *Chart) Depth(id int64) int {
	i, ok := c.index[id]
	if !ok {
		return -1
	}
	return c.nodes[i].depth
}

// Ancestors returns the parent chain of id, nearest parent first.
func (c *Chart) Ancestors(id int64) []Account {
	i, ok := c.index[id]
	if !ok {
		return nil
	}
	out := make([]Account, 0, c.nodes[i].depth)
	for p := c.nodes[i].parent; p >= 0; p = c.nodes[p].parent {
		out = append(out, c.nodes[p].account)
	}
	return out
}

// Children returns the direct children of id ordered by code.
func (c *Chart) Children(id int64) []Account {
	i, ok := c.index[id]
	if !ok {
		return nil
	}
	out := make([]Account, 0, len(c.nodes[i].children))
	for _, ch := range c.nodes[i].children {
		out = append(out, c.nodes[ch].account)
	}
	return out
}

// WouldCycle reports whether making parentID the parent of id closes a loop.
func (c *Chart) WouldCycle(id, parentID int64) bool {
	if id == parentID {
		return true
	}
	p, ok := c.index[parentID]
	if !ok {
		return false
	}
	for ; p >= 0; p = c.nodes[p].parent {
		if c.nodes[p].account.ID == id {
			return true
		}
	}
	return false
}

// RollUp returns the balance of id plus the roll-up of all its descendants.
func (c *Chart) RollUp(id int64) (decimal.Decimal, bool) {
	i, ok := c.index[id]
	if !ok {
		return decimal.Zero, false
	}
	memo := make(map[int]decimal.Decimal)
	return c.rollUp(i, memo), true
}

func (c *Chart) rollUp(i int, memo map[int]decimal.Decimal) decimal.Decimal {
	if v, ok := memo[i]; ok {
		return v
	}
	total := c.nodes[i].account.Balance
	for _, ch := range c.nodes[i].children {
		total = total.Add(c.rollUp(ch, memo))
	}
	memo[i] = total
	return total
}

// RollUpAll computes the roll-up of every account in one pass.
func (c *Chart) RollUpAll() map[int64]decimal.Decimal {
	order := make([]int, len(c.nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return c.nodes[order[a]].depth > c.nodes[order[b]].depth
	})
	sums := make([]decimal.Decimal, len(c.nodes))
	for _, i := range order {
		sums[i] = sums[i].Add(c.nodes[i].account.Balance)
		if p := c.nodes[i].parent; p >= 0 {
			sums[p] = sums[p].Add(sums[i])
		}
	}
	out := make(map[int64]decimal.Decimal, len(c.nodes))
	for i, node := range c.nodes {
		out[node.account.ID] = sums[i]
	}
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
