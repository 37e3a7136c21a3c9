package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	bplus "bplusindex/bplustree"
	"bplusindex/engine"

	"github.com/dustin/go-humanize"
)

const helpText = `commands:
  insert <key> <value>   add an entry (duplicates go after existing ones)
  select <key>           value of the oldest entry for key
  range <key> <n>        up to n values starting at the first key >= key
  update <key> <value>   replace the value of the oldest entry for key
  delete <key>           remove the oldest entry for key
  print                  dump the tree level by level
  stats                  counters
  check                  verify every tree invariant
  checkpoint [file]      snapshot the tree: with --dir into the engine store
                         (truncating the log), otherwise into memory; with a
                         file, into that index file
  restore [file]         replace the tree with the last in-memory snapshot or
                         with an index file (not with --dir)
  init                   discard everything and start with an empty tree
  exit`

// session runs REPL commands against a bare tree, or against an engine when
// eng is set, in which case mutations go through its write-ahead log.
type session struct {
	tree *bplus.BPlusTree
	eng  *engine.Engine
	out  io.Writer
	// saved holds the last in-memory snapshot of a tree session.
	saved *bplus.InMemoryPager
}

func newTreeSession(tree *bplus.BPlusTree, out io.Writer) *session {
	return &session{tree: tree, out: out}
}

func newEngineSession(eng *engine.Engine, out io.Writer) *session {
	return &session{tree: eng.Tree(), eng: eng, out: out}
}

func (s *session) run(in io.Reader, prompt string) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() { // Ctrl+D
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			break
		}
		if err := s.exec(line); err != nil {
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return scanner.Err()
}

func (s *session) exec(line string) error {
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "insert":
		if len(args) < 2 {
			return errors.New("usage: insert <key> <value>")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		if err := s.insert(key, []byte(strings.Join(args[1:], " "))); err != nil {
			return fmt.Errorf("insert %d: %w", key, err)
		}
		fmt.Fprintln(s.out, "OK")

	case "select":
		if len(args) != 1 {
			return errors.New("usage: select <key>")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		v, err := s.tree.Select(key)
		if err != nil {
			return fmt.Errorf("select %d: %w", key, err)
		}
		fmt.Fprintf(s.out, "%s\n", v)

	case "range":
		if len(args) != 2 {
			return errors.New("usage: range <key> <n>")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid count %q", args[1])
		}
		rows := 0
		for v := range s.tree.SelectRange(key, n) {
			fmt.Fprintf(s.out, "%s\n", v)
			rows++
		}
		fmt.Fprintf(s.out, "(%d rows)\n", rows)

	case "update":
		if len(args) < 2 {
			return errors.New("usage: update <key> <value>")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		old, err := s.update(key, []byte(strings.Join(args[1:], " ")))
		if err != nil {
			return fmt.Errorf("update %d: %w", key, err)
		}
		fmt.Fprintf(s.out, "OK (was %s)\n", old)

	case "delete":
		if len(args) != 1 {
			return errors.New("usage: delete <key>")
		}
		key, err := parseKey(args[0])
		if err != nil {
			return err
		}
		v, err := s.delete(key)
		if err != nil {
			return fmt.Errorf("delete %d: %w", key, err)
		}
		fmt.Fprintf(s.out, "deleted %s\n", v)

	case "print":
		return s.tree.PrintTree(s.out)

	case "stats":
		s.printStats()

	case "check":
		if err := s.tree.Check(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")

	case "checkpoint":
		switch {
		case len(args) > 1:
			return errors.New("usage: checkpoint [file]")
		case len(args) == 1:
			if err := s.checkpointFile(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "checkpoint written to %s (%d nodes)\n", args[0], s.tree.AllNodes())
		case s.eng != nil:
			if err := s.eng.Checkpoint(); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "checkpoint at LSN %d\n", s.eng.Stats().CheckpointLSN)
		default:
			mem := bplus.NewInMemoryPager()
			if err := s.tree.Checkpoint(mem, 0); err != nil {
				return err
			}
			s.saved = mem
			fmt.Fprintf(s.out, "snapshot saved (%d nodes)\n", s.tree.AllNodes())
		}

	case "restore":
		if len(args) > 1 {
			return errors.New("usage: restore [file]")
		}
		if s.eng != nil {
			return errors.New("restore would bypass the write-ahead log; not available with --dir")
		}
		if err := s.restore(args); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "restored %d records\n", s.tree.AllRecords())

	case "init":
		var err error
		if s.eng != nil {
			err = s.eng.Reset()
		} else {
			err = s.tree.Init()
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, "OK")

	case "help":
		fmt.Fprintln(s.out, helpText)

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (s *session) insert(key bplus.Key, value []byte) error {
	if s.eng != nil {
		return s.eng.Insert(key, value)
	}
	return s.tree.Insert(key, value)
}

func (s *session) update(key bplus.Key, value []byte) ([]byte, error) {
	if s.eng != nil {
		return s.eng.Update(key, value)
	}
	return s.tree.Update(key, value)
}

func (s *session) delete(key bplus.Key) ([]byte, error) {
	if s.eng != nil {
		return s.eng.Delete(key)
	}
	return s.tree.Delete(key)
}

// checkpointFile writes the tree to a single-file index at path, replacing
// any checkpoint already there.
func (s *session) checkpointFile(path string) error {
	p, err := bplus.NewOnDiskPager(path)
	if err != nil {
		return err
	}
	if err := p.Reset(); err != nil {
		p.Close()
		return err
	}
	var lsn uint64
	if s.eng != nil {
		lsn = s.eng.Stats().LSN
	}
	if err := s.tree.Checkpoint(p, lsn); err != nil {
		p.Close()
		return err
	}
	return p.Close()
}

func (s *session) restore(args []string) error {
	var p bplus.Pager
	if len(args) == 1 {
		if _, err := os.Stat(args[0]); err != nil {
			return err
		}
		disk, err := bplus.NewOnDiskPager(args[0])
		if err != nil {
			return err
		}
		defer disk.Close()
		p = disk
	} else {
		if s.saved == nil {
			return errors.New("no snapshot saved (run checkpoint first)")
		}
		p = s.saved
	}

	tree, _, err := bplus.Restore(p, s.tree.Config())
	if err != nil {
		return err
	}
	old := s.tree
	s.tree = tree
	old.Destroy()
	return nil
}

func (s *session) printStats() {
	pf := func(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }

	pf("records:  %s\n", humanize.Comma(int64(s.tree.AllRecords())))
	pf("nodes:    %s\n", humanize.Comma(int64(s.tree.AllNodes())))
	pf("height:   %d\n", s.tree.Height())
	if s.eng == nil {
		return
	}
	st := s.eng.Stats()
	pf("lsn:      %d (checkpoint %d)\n", st.LSN, st.CheckpointLSN)
	pf("wal:      %d segment(s)\n", st.WALSegments)
	pf("store:    %s\n", humanize.IBytes(uint64(max(st.StorePages-1, 0))*bplus.PageSize))
	pf("cache:    %.1f%% hits (%s / %s)\n", st.CacheHitRatio*100,
		humanize.Comma(int64(st.CacheHits)), humanize.Comma(int64(st.CacheHits+st.CacheMisses)))
}

func parseKey(s string) (bplus.Key, error) {
	k, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid key %q", s)
	}
	return k, nil
}
