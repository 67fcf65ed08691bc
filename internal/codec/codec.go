// Package codec reads and writes the line-oriented network description
// format:
//
//	 input node 0
//	 input node 1
//	       node 2 default 0.5 connected to 0:1.25 1:-0.5
//	output node 3 connected to 2:2
//
// Ids are dense, start at 0 and increase by one per line. A link may only
// reference an id declared on an earlier line. Blank lines and text after
// '#' are ignored.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"robosim/internal/nn"
)

var ErrMalformed = errors.New("malformed network description")

// ParseError locates a grammar violation in a description file. Line is zero
// when the file itself could not be read.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("network description %s: %s", e.File, e.Msg)
	}
	return fmt.Sprintf("network description %s line %d: %s", e.File, e.Line, e.Msg)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

const (
	roleInput  = "input"
	roleOutput = "output"
)

// Write emits one line per node in id order.
func Write(w io.Writer, net *nn.Network) error {
	bw := bufio.NewWriter(w)
	for _, node := range net.Nodes() {
		role := ""
		switch {
		case node.IsInput:
			role = roleInput
		case node.IsOutput:
			role = roleOutput
		}
		line := fmt.Sprintf("%6s node %d", role, node.ID)
		if node.Baseline != 0 {
			line += " default " + formatFloat(node.Baseline)
		}
		if len(node.Inputs) > 0 {
			parts := make([]string, len(node.Inputs))
			for i, link := range node.Inputs {
				parts[i] = strconv.Itoa(link.From) + ":" + formatFloat(link.Weight)
			}
			line += " connected to " + strings.Join(parts, " ")
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes net to path through a temporary file in the same
// directory followed by a rename.
func WriteFile(path string, net *nn.Network) error {
	return WriteAtomic(path, func(w io.Writer) error {
		return Write(w, net)
	})
}

// Read parses a description. name is used in error messages only.
func Read(r io.Reader, name string) (*nn.Network, error) {
	var (
		nodes   []*nn.Node
		inputs  []int
		outputs []int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		node, err := parseLine(text, len(nodes))
		if err != nil {
			return nil, &ParseError{File: name, Line: lineNum, Msg: err.Error()}
		}
		nodes = append(nodes, node)
		if node.IsInput {
			inputs = append(inputs, node.ID)
		} else if node.IsOutput {
			outputs = append(outputs, node.ID)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseError{File: name, Msg: err.Error()}
	}

	net, err := nn.NewNetwork(inputs, outputs, nodes)
	if err != nil {
		return nil, &ParseError{File: name, Msg: err.Error()}
	}
	return net, nil
}

// ReadFile loads a description from disk.
func ReadFile(path string) (*nn.Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{File: path, Msg: fmt.Sprintf("could not open: %v", err)}
	}
	defer f.Close()
	return Read(f, path)
}

func parseLine(text string, nextID int) (*nn.Node, error) {
	fields := strings.Fields(normalizeLinks(text))
	pos := 0
	next := func() (string, bool) {
		if pos >= len(fields) {
			return "", false
		}
		pos++
		return fields[pos-1], true
	}

	node := &nn.Node{}
	tok, _ := next()
	switch tok {
	case roleInput:
		node.IsInput = true
		tok, _ = next()
	case roleOutput:
		node.IsOutput = true
		tok, _ = next()
	}
	if tok != "node" {
		return nil, fmt.Errorf("syntax error: expected 'node', found %q", tok)
	}

	tok, ok := next()
	if !ok {
		return nil, errors.New("syntax error: missing node id")
	}
	id, err := strconv.Atoi(tok)
	if err != nil || !unsigned(tok) {
		return nil, fmt.Errorf("syntax error: invalid node id %q", tok)
	}
	if id != nextID {
		return nil, fmt.Errorf("node ids must be sequential and start at 0: got %d want %d", id, nextID)
	}
	node.ID = id

	tok, ok = next()
	if ok && tok == "default" {
		raw, present := next()
		if !present {
			return nil, errors.New("syntax error: missing default value")
		}
		node.Baseline, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("syntax error: invalid default value %q", raw)
		}
		tok, ok = next()
	}

	if ok && tok == "connected" {
		if to, _ := next(); to != "to" {
			return nil, errors.New("syntax error: expected 'connected to'")
		}
		for {
			raw, more := next()
			if !more {
				break
			}
			link, err := parseLink(raw, nextID)
			if err != nil {
				return nil, err
			}
			node.Inputs = append(node.Inputs, link)
		}
		if len(node.Inputs) == 0 {
			return nil, errors.New("syntax error: 'connected to' without connections")
		}
		return node, nil
	}
	if ok {
		return nil, fmt.Errorf("syntax error: unexpected %q", tok)
	}
	return node, nil
}

func parseLink(raw string, declared int) (nn.Link, error) {
	src, weight, found := strings.Cut(raw, ":")
	if !found {
		return nn.Link{}, fmt.Errorf("syntax error in connections: %q", raw)
	}
	from, err := strconv.Atoi(src)
	if err != nil || !unsigned(src) {
		return nn.Link{}, fmt.Errorf("syntax error in connections: invalid id %q", src)
	}
	if from >= declared {
		return nn.Link{}, fmt.Errorf("undefined node id %d", from)
	}
	w, err := strconv.ParseFloat(weight, 64)
	if err != nil {
		return nn.Link{}, fmt.Errorf("syntax error in connections: invalid weight %q", weight)
	}
	return nn.Link{From: from, Weight: w}, nil
}

// normalizeLinks collapses "3 : 0.5" and "3: 0.5" into "3:0.5".
func normalizeLinks(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ':' {
			s := b.String()
			trimmed := strings.TrimRight(s, " \t")
			b.Reset()
			b.WriteString(trimmed)
			b.WriteByte(':')
			for i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// unsigned reports whether s is a plain run of decimal digits. Atoi alone
// would also accept a sign.
func unsigned(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteAtomic runs write against a pending file next to path and renames it
// into place once write succeeds. Readers see either the old or the new
// file, and every commit gives path a new identity.
func WriteAtomic(path string, write func(io.Writer) error) error {
	pending, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = pending.Cleanup()
	}()

	if err := write(pending); err != nil {
		return err
	}
	return pending.CloseAtomicallyReplace()
}
