package cfg

import "sort"

// end is an unconnected outgoing edge waiting for its target.
type end struct {
	node int
	typ  EdgeType
	cond string
}

// frame is an enclosing loop or switch that break and continue resolve to.
type frame struct {
	loop       bool
	switchBody int
	hasDefault bool
	breaks     []end
	continues  []end
}

type constructor struct {
	g      *ControlFlowGraph
	frames []*frame
	// open is the node that straight-line statements are appended to, or
	// -1 when the next statement needs a node of its own.
	open        int
	unreachable map[int]bool
}

// construct turns a statement tree into a closed graph. Ends left dangling
// after the body are joined at one synthesized exit.
func construct(fn string, root *Stmt, firstLine, lastLine int) *ControlFlowGraph {
	c := &constructor{
		g:           &ControlFlowGraph{Function: fn, Exit: -1},
		open:        -1,
		unreachable: make(map[int]bool),
	}
	entry := c.node(Node{Type: NodeEntry, Line: firstLine, EndLine: firstLine})
	c.g.Entry = entry

	ends := c.stmt(root, []end{{node: entry, typ: EdgeSequential}})
	if len(ends) > 0 {
		exit := c.node(Node{Type: NodeExit, Line: lastLine, EndLine: lastLine})
		c.connect(ends, exit)
		c.g.Exit = exit
	}

	for l := range c.unreachable {
		c.g.UnreachableLines = append(c.g.UnreachableLines, l)
	}
	sort.Ints(c.g.UnreachableLines)
	c.g.out = c.g.adjacency()
	return c.g
}

func (c *constructor) node(n Node) int {
	n.ID = len(c.g.Nodes)
	c.g.Nodes = append(c.g.Nodes, n)
	return n.ID
}

func (c *constructor) connect(ends []end, to int) {
	for _, e := range ends {
		c.g.Edges = append(c.g.Edges, Edge{From: e.node, To: to, Type: e.typ, Condition: e.cond})
	}
}

// loopBack connects ends to a loop head. Fall-through ends become loop
// edges; conditional ends keep their outcome.
func (c *constructor) loopBack(ends []end, head int, cond string) {
	for _, e := range ends {
		if e.typ == EdgeSequential {
			e.typ, e.cond = EdgeLoop, cond
		}
		c.connect([]end{e}, head)
	}
}

func (c *constructor) stmt(s *Stmt, in []end) []end {
	if s == nil {
		return in
	}
	if len(in) == 0 && s.Kind != StmtBlock && s.Kind != StmtCase {
		c.markUnreachable(s)
		return nil
	}

	switch s.Kind {
	case StmtBlock:
		for _, child := range s.Children {
			in = c.stmt(child, in)
		}
		return in
	case StmtSimple:
		return c.simple(s, in)
	case StmtIf:
		return c.ifStmt(s, in)
	case StmtWhile, StmtFor:
		return c.loop(s, in)
	case StmtDoWhile:
		return c.doWhile(s, in)
	case StmtSwitch:
		return c.switchStmt(s, in)
	case StmtCase:
		return c.caseLabel(s, in)
	case StmtReturn:
		ret := c.node(Node{
			Type: NodeReturn, Line: s.Line, EndLine: s.EndLine,
			Statements: []string{s.Text}, Lines: span(s.Line, s.EndLine),
		})
		c.connect(in, ret)
		c.open = -1
		return nil
	case StmtBreak:
		ends := c.simple(s, in)
		c.open = -1
		if f := c.innermost(false); f != nil {
			f.breaks = append(f.breaks, ends...)
			return nil
		}
		return ends
	case StmtContinue:
		ends := c.simple(s, in)
		c.open = -1
		if f := c.innermost(true); f != nil {
			f.continues = append(f.continues, ends...)
			return nil
		}
		return ends
	}
	return c.simple(s, in)
}

// simple appends s to the open node when control falls straight into it
// and starts a new statement node otherwise.
func (c *constructor) simple(s *Stmt, in []end) []end {
	if len(in) == 1 && in[0].typ == EdgeSequential && in[0].node == c.open {
		n := &c.g.Nodes[c.open]
		n.Statements = append(n.Statements, s.Text)
		n.Lines = append(n.Lines, span(s.Line, s.EndLine)...)
		if s.EndLine > n.EndLine {
			n.EndLine = s.EndLine
		}
		return in
	}
	id := c.node(Node{
		Type: NodeStatement, Line: s.Line, EndLine: s.EndLine,
		Statements: []string{s.Text}, Lines: span(s.Line, s.EndLine),
	})
	c.connect(in, id)
	c.open = id
	return []end{{node: id, typ: EdgeSequential}}
}

// arm starts a then or else arm whose leading statements merge into it.
func (c *constructor) arm(typ NodeType, body *Stmt, from int, edge EdgeType, cond string) []end {
	line := body.Line
	arm := c.node(Node{Type: typ, Line: line, EndLine: line})
	c.g.Edges = append(c.g.Edges, Edge{From: from, To: arm, Type: edge, Condition: cond})
	c.open = arm
	ends := c.stmt(body, []end{{node: arm, typ: EdgeSequential}})
	c.open = -1
	return ends
}

func (c *constructor) ifStmt(s *Stmt, in []end) []end {
	c.open = -1
	line := condLine(s)
	cond := c.node(Node{Type: NodeCondition, Line: line, EndLine: line, Condition: s.Cond, Lines: []int{line}})
	c.connect(in, cond)

	ends := c.arm(NodeThenBranch, s.Then, cond, EdgeTrue, s.Cond)
	if s.Else != nil {
		return append(ends, c.arm(NodeElseBranch, s.Else, cond, EdgeFalse, s.Cond)...)
	}
	return append(ends, end{node: cond, typ: EdgeFalse, cond: s.Cond})
}

func (c *constructor) loop(s *Stmt, in []end) []end {
	c.open = -1
	if s.Init != "" {
		in = c.simple(&Stmt{Kind: StmtSimple, Line: s.Line, EndLine: s.Line, Text: s.Init}, in)
	}
	c.open = -1
	line := condLine(s)
	head := c.node(Node{Type: NodeLoopHead, Line: line, EndLine: line, Condition: s.Cond, Lines: []int{line}})
	c.connect(in, head)

	f := &frame{loop: true}
	c.frames = append(c.frames, f)
	ends := c.stmt(s.Body, []end{{node: head, typ: EdgeTrue, cond: s.Cond}})
	c.frames = c.frames[:len(c.frames)-1]

	ends = append(ends, f.continues...)
	c.open = -1
	if s.Update != "" && len(ends) > 0 {
		ends = c.simple(&Stmt{Kind: StmtSimple, Line: s.Line, EndLine: s.Line, Text: s.Update}, ends)
	}
	c.loopBack(ends, head, s.Cond)
	c.open = -1
	return append(f.breaks, end{node: head, typ: EdgeFalse, cond: s.Cond})
}

func (c *constructor) doWhile(s *Stmt, in []end) []end {
	c.open = -1
	head := c.node(Node{Type: NodeDoHead, Line: s.Line, EndLine: s.Line})
	c.connect(in, head)

	f := &frame{loop: true}
	c.frames = append(c.frames, f)
	c.open = head
	ends := c.stmt(s.Body, []end{{node: head, typ: EdgeSequential}})
	c.frames = c.frames[:len(c.frames)-1]
	c.open = -1

	ends = append(ends, f.continues...)
	if len(ends) == 0 {
		return f.breaks
	}
	line := condLine(s)
	cond := c.node(Node{Type: NodeDoCondition, Line: line, EndLine: line, Condition: s.Cond, Lines: []int{line}})
	c.connect(ends, cond)
	c.g.Edges = append(c.g.Edges, Edge{From: cond, To: head, Type: EdgeLoop, Condition: s.Cond})
	return append(f.breaks, end{node: cond, typ: EdgeFalse, cond: s.Cond})
}

func (c *constructor) switchStmt(s *Stmt, in []end) []end {
	c.open = -1
	line := condLine(s)
	sw := c.node(Node{Type: NodeSwitch, Line: line, EndLine: line, Condition: s.Cond, Lines: []int{line}})
	c.connect(in, sw)
	bodyLine := line
	if s.Body != nil && s.Body.Line > 0 {
		bodyLine = s.Body.Line
	}
	body := c.node(Node{Type: NodeSwitchBody, Line: bodyLine, EndLine: s.EndLine, Condition: s.Cond})
	c.g.Edges = append(c.g.Edges, Edge{From: sw, To: body, Type: EdgeSwitch, Condition: s.Cond})

	f := &frame{switchBody: body}
	c.frames = append(c.frames, f)
	ends := c.stmt(s.Body, nil)
	c.frames = c.frames[:len(c.frames)-1]
	c.open = -1

	ends = append(ends, f.breaks...)
	if !f.hasDefault {
		ends = append(ends, end{node: body, typ: EdgeSwitch, cond: "default"})
	}
	return ends
}

// caseLabel starts a node entered from the switch body and from the
// previous case falling through.
func (c *constructor) caseLabel(s *Stmt, in []end) []end {
	var f *frame
	for i := len(c.frames) - 1; i >= 0; i-- {
		if !c.frames[i].loop {
			f = c.frames[i]
			break
		}
	}
	if f == nil {
		return c.simple(s, in)
	}
	if s.Cond == "default" {
		f.hasDefault = true
	}
	id := c.node(Node{
		Type: NodeStatement, Line: s.Line, EndLine: s.EndLine,
		Statements: []string{s.Text}, Lines: span(s.Line, s.EndLine),
	})
	c.g.Edges = append(c.g.Edges, Edge{From: f.switchBody, To: id, Type: EdgeSwitch, Condition: s.Cond})
	c.connect(in, id)
	c.open = id
	return []end{{node: id, typ: EdgeSequential}}
}

// innermost returns the nearest enclosing frame, or the nearest loop when
// loopOnly is set.
func (c *constructor) innermost(loopOnly bool) *frame {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if !loopOnly || c.frames[i].loop {
			return c.frames[i]
		}
	}
	return nil
}

func (c *constructor) markUnreachable(s *Stmt) {
	if s == nil {
		return
	}
	switch s.Kind {
	case StmtBlock:
		for _, child := range s.Children {
			c.markUnreachable(child)
		}
		return
	case StmtCase:
		return
	}
	if s.Line > 0 {
		c.unreachable[s.Line] = true
	}
	c.markUnreachable(s.Then)
	c.markUnreachable(s.Else)
	c.markUnreachable(s.Body)
}

func condLine(s *Stmt) int {
	if s.CondLine > 0 {
		return s.CondLine
	}
	return s.Line
}

func span(from, to int) []int {
	if to < from {
		to = from
	}
	out := make([]int, 0, to-from+1)
	for l := from; l <= to; l++ {
		out = append(out, l)
	}
	return out
}
