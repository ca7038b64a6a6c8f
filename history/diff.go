package history

import (
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines kept around a change.
const contextLines = 1

type Tag string

const (
	TagEqual   Tag = "equal"
	TagReplace Tag = "replace"
	TagInsert  Tag = "insert"
	TagDelete  Tag = "delete"
)

// Side is one half of a diff block. Lines are HTML escaped and may contain
// <ins> and <del> markers.
type Side struct {
	Offset int
	Lines  []string
}

type Block struct {
	Tag     Tag
	Base    Side
	Changed Side
}

// DiffGroup is a run of blocks around one or more nearby changes.
type DiffGroup []Block

type opcode struct {
	tag            Tag
	i1, i2, j1, j2 int
}

// DiffLines compares two texts line by line. Identical texts give no groups.
func DiffLines(original, changed string) []DiffGroup {
	base := strings.Split(original, "\n")
	other := strings.Split(changed, "\n")

	var groups []DiffGroup
	for _, ops := range groupOpcodes(lineOpcodes(original, changed), contextLines) {
		group := make(DiffGroup, 0, len(ops))
		for _, op := range ops {
			block := Block{
				Tag:     op.tag,
				Base:    Side{Offset: op.i1, Lines: escapeLines(base[op.i1:op.i2])},
				Changed: Side{Offset: op.j1, Lines: escapeLines(other[op.j1:op.j2])},
			}
			if op.tag == TagReplace && op.i2-op.i1 == op.j2-op.j1 {
				markInline(&block, base[op.i1:op.i2], other[op.j1:op.j2])
			}
			if op.tag != TagEqual {
				markWholeBlock(&block)
			}
			group = append(group, block)
		}
		groups = append(groups, group)
	}
	return groups
}

func lineOpcodes(a, b string) []opcode {
	dmp := diffmatchpatch.New()
	// Every line, the last one included, must end in a newline for the
	// line counts below to hold.
	ca, cb, lines := dmp.DiffLinesToChars(a+"\n", b+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var ops []opcode
	i, j := 0, 0
	deleted, inserted := 0, 0
	flush := func() {
		switch {
		case deleted > 0 && inserted > 0:
			ops = append(ops, opcode{TagReplace, i, i + deleted, j, j + inserted})
		case deleted > 0:
			ops = append(ops, opcode{TagDelete, i, i + deleted, j, j})
		case inserted > 0:
			ops = append(ops, opcode{TagInsert, i, i, j, j + inserted})
		}
		i += deleted
		j += inserted
		deleted, inserted = 0, 0
	}

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if n == 0 {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			ops = append(ops, opcode{TagEqual, i, i + n, j, j + n})
			i += n
			j += n
		case diffmatchpatch.DiffDelete:
			deleted += n
		case diffmatchpatch.DiffInsert:
			inserted += n
		}
	}
	flush()
	return ops
}

// groupOpcodes splits opcodes into hunks with n lines of context, dropping
// unchanged stretches further than n lines away from any change.
func groupOpcodes(ops []opcode, n int) [][]opcode {
	if len(ops) == 0 {
		ops = []opcode{{TagEqual, 0, 1, 0, 1}}
	}
	ops = append([]opcode(nil), ops...)

	if first := &ops[0]; first.tag == TagEqual {
		first.i1 = max(first.i1, first.i2-n)
		first.j1 = max(first.j1, first.j2-n)
	}
	if last := &ops[len(ops)-1]; last.tag == TagEqual {
		last.i2 = min(last.i2, last.i1+n)
		last.j2 = min(last.j2, last.j1+n)
	}

	var groups [][]opcode
	var group []opcode
	for _, op := range ops {
		if op.tag == TagEqual && op.i2-op.i1 > 2*n {
			group = append(group, opcode{TagEqual, op.i1, min(op.i2, op.i1+n), op.j1, min(op.j2, op.j1+n)})
			groups = append(groups, group)
			group = nil
			op.i1 = max(op.i1, op.i2-n)
			op.j1 = max(op.j1, op.j2-n)
		}
		group = append(group, op)
	}
	if len(group) > 0 && !(len(group) == 1 && group[0].tag == TagEqual) {
		groups = append(groups, group)
	}
	return groups
}

// markInline highlights the changed characters of each line pair.
func markInline(block *Block, base, changed []string) {
	dmp := diffmatchpatch.New()
	for k := range base {
		if base[k] == "" || changed[k] == "" {
			continue
		}
		diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(base[k], changed[k], false))

		var b, c strings.Builder
		for _, d := range diffs {
			text := html.EscapeString(d.Text)
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				b.WriteString(text)
				c.WriteString(text)
			case diffmatchpatch.DiffDelete:
				b.WriteString("<del>" + text + "</del>")
			case diffmatchpatch.DiffInsert:
				c.WriteString("<ins>" + text + "</ins>")
			}
		}
		block.Base.Lines[k] = b.String()
		block.Changed.Lines[k] = c.String()
	}
}

// markWholeBlock wraps a side in <ins> or <del> when the other side has no
// content at all.
func markWholeBlock(block *Block) {
	if blank(block.Base.Lines) {
		wrapLines(block.Changed.Lines, "ins")
	}
	if blank(block.Changed.Lines) {
		wrapLines(block.Base.Lines, "del")
	}
}

func blank(lines []string) bool {
	return strings.Trim(strings.Join(lines, ""), " \t\n\r\x00\u00a0") == ""
}

func wrapLines(lines []string, tag string) {
	for k := range lines {
		lines[k] = "<" + tag + ">" + lines[k] + "</" + tag + ">"
	}
}

func escapeLines(lines []string) []string {
	res := make([]string, len(lines))
	for k := range lines {
		res[k] = html.EscapeString(lines[k])
	}
	return res
}
