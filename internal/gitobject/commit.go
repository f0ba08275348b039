package gitobject

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mustafaquraish/minigit/internal/githash"
	"github.com/mustafaquraish/minigit/internal/giterrors"
)

// Commit names a tree plus zero or more parents and authorship metadata.
type Commit struct {
	TreeHash    githash.Hash
	Parents     []githash.Hash
	Author      string
	AuthorTime  uint64
	AuthorTZ    string
	Committer   string
	CommitTime  uint64
	CommitterTZ string
	Message     []byte
}

func marshalCommit(c *Commit) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeHash)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s %d %s\n", c.Author, c.AuthorTime, c.AuthorTZ)
	fmt.Fprintf(&buf, "committer %s %d %s\n", c.Committer, c.CommitTime, c.CommitterTZ)
	buf.WriteByte('\n')
	buf.Write(c.Message)
	return buf.Bytes(), nil
}

func unmarshalCommit(payload []byte) (*Commit, error) {
	c := &Commit{}
	rest := payload
	sawTree := false
	for {
		nl := bytes.IndexByte(rest, '\n')
		if nl < 0 {
			return nil, giterrors.New(giterrors.MalformedObject, "commit headers truncated before blank line")
		}
		line := rest[:nl]
		rest = rest[nl+1:]
		if len(line) == 0 {
			break // blank line ends the header block
		}
		sp := bytes.IndexByte(line, ' ')
		if sp < 0 {
			return nil, giterrors.New(giterrors.MalformedObject, "commit header missing value: "+string(line))
		}
		key, value := string(line[:sp]), string(line[sp+1:])
		switch key {
		case "tree":
			h, err := githash.FromHexString(value)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedObject, "commit tree hash", err)
			}
			c.TreeHash = h
			sawTree = true
		case "parent":
			h, err := githash.FromHexString(value)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedObject, "commit parent hash", err)
			}
			c.Parents = append(c.Parents, h)
		case "author":
			name, ts, tz, err := parseSignature(value)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedObject, "commit author line", err)
			}
			c.Author, c.AuthorTime, c.AuthorTZ = name, ts, tz
		case "committer":
			name, ts, tz, err := parseSignature(value)
			if err != nil {
				return nil, giterrors.Wrap(giterrors.MalformedObject, "commit committer line", err)
			}
			c.Committer, c.CommitTime, c.CommitterTZ = name, ts, tz
		default:
			return nil, giterrors.New(giterrors.MalformedObject, "unrecognized commit header "+key)
		}
	}
	if !sawTree {
		return nil, giterrors.New(giterrors.MalformedObject, "commit missing tree header")
	}
	c.Message = bytes.TrimSuffix(rest, []byte("\n"))
	return c, nil
}

// parseSignature splits "name '<'email'>' SP unix-seconds SP tz" into the
// "name <email>" portion, the seconds, and the timezone.
func parseSignature(line string) (name string, seconds uint64, tz string, err error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", 0, "", fmt.Errorf("malformed signature %q", line)
	}
	tz = fields[len(fields)-1]
	tsStr := fields[len(fields)-2]
	ts, perr := strconv.ParseUint(tsStr, 10, 64)
	if perr != nil {
		return "", 0, "", fmt.Errorf("malformed signature timestamp %q: %w", tsStr, perr)
	}
	nameIdx := len(line) - len(tsStr) - len(tz) - 2
	if nameIdx < 0 {
		return "", 0, "", fmt.Errorf("malformed signature %q", line)
	}
	name = strings.TrimSpace(line[:nameIdx])
	if !strings.Contains(name, "<") || !strings.HasSuffix(name, ">") {
		return "", 0, "", fmt.Errorf("malformed signature name/email %q", name)
	}
	return name, ts, tz, nil
}
