// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package scanner

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danjacques/gosift/vfs"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type eventLog struct {
	sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.Lock()
	defer l.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) get() []string {
	l.Lock()
	defer l.Unlock()
	return append([]string(nil), l.entries...)
}

type testFactory struct {
	desc Descriptor
	log  *eventLog

	boring  bool
	panicIn string
	derive  func(env *Env) ([]*vfs.Node, error)
}

func (f *testFactory) Descriptor() Descriptor { return f.desc }

func (f *testFactory) NewScan(env *Env) Scan { return &testScan{f: f, env: env} }

type testScan struct {
	f     *testFactory
	env   *Env
	bytes []byte
}

func (s *testScan) Boring(prefix []byte) bool { return s.f.boring }

func (s *testScan) Process(chunk []byte) error {
	if s.f.panicIn == "process" {
		panic("process exploded")
	}
	s.bytes = append(s.bytes, chunk...)
	return nil
}

func (s *testScan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	s.f.log.add("%s:finish:%s:%s", s.f.desc.Name, s.env.Node.Inode, s.bytes)
	if s.f.derive != nil {
		return s.f.derive(s.env)
	}
	return nil, nil
}

func factory(log *eventLog, name string, deps ...string) *testFactory {
	return &testFactory{
		desc: Descriptor{
			Name:    name,
			Types:   []string{".*"},
			Depends: deps,
			Default: true,
		},
		log: log,
	}
}

func names(entries []*Entry) []string {
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Name
	}
	return result
}

var _ = Describe("Registry", func() {
	var log eventLog

	It("orders scanners after their dependencies, stably", func() {
		reg, err := NewRegistry(
			factory(&log, "C", "B"),
			factory(&log, "B", "A"),
			factory(&log, "D"),
			factory(&log, "A"),
		)
		Expect(err).ToNot(HaveOccurred())
		Expect(names(reg.Entries())).To(Equal([]string{"D", "A", "B", "C"}))
	})

	It("rejects dependency cycles", func() {
		_, err := NewRegistry(
			factory(&log, "A", "C"),
			factory(&log, "B", "A"),
			factory(&log, "C", "B"),
			factory(&log, "D"),
		)
		Expect(errors.Cause(err)).To(Equal(ErrDependencyCycle))

		_, err = NewRegistry(factory(&log, "self", "self"))
		Expect(errors.Cause(err)).To(Equal(ErrDependencyCycle))
	})

	It("rejects unknown dependencies and duplicate names", func() {
		_, err := NewRegistry(factory(&log, "A", "missing"))
		Expect(errors.Cause(err)).To(Equal(ErrUnknownDependency))

		_, err = NewRegistry(factory(&log, "A"), factory(&log, "A"))
		Expect(err).To(HaveOccurred())
	})

	It("matches whole type strings", func() {
		f := factory(&log, "mail")
		f.desc.Types = []string{`text/x-mail.*`, `message/rfc822`}
		reg, err := NewRegistry(f)
		Expect(err).ToNot(HaveOccurred())

		e := reg.Lookup("mail")
		Expect(e.Matches("text/x-mail; charset=us-ascii")).To(BeTrue())
		Expect(e.Matches("message/rfc822")).To(BeTrue())
		Expect(e.Matches("application/message/rfc822")).To(BeFalse())
	})

	It("selects defaults or named scanners, with their dependencies", func() {
		optional := factory(&log, "Optional", "Base")
		optional.desc.Default = false
		reg, err := NewRegistry(factory(&log, "Base"), optional, factory(&log, "Other"))
		Expect(err).ToNot(HaveOccurred())

		sel, err := reg.Select(nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(names(sel)).To(Equal([]string{"Base", "Other"}))

		sel, err = reg.Select([]string{"Optional"})
		Expect(err).ToNot(HaveOccurred())
		Expect(names(sel)).To(Equal([]string{"Base", "Optional"}))

		_, err = reg.Select([]string{"Nope"})
		Expect(errors.Cause(err)).To(Equal(ErrUnknownScanner))
	})
})

var _ = Describe("Pipeline", func() {
	var (
		tempDir string
		st      *vfs.Store
		log     *eventLog
		events  []Event
		eventMu sync.Mutex
		root    *vfs.Node
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "gosift-scanner")
		Expect(err).ToNot(HaveOccurred())

		log = &eventLog{}
		events = nil

		st = vfs.NewStore()
		Expect(st.RegisterReader('x', func(ctx context.Context, st *vfs.Store, n *vfs.Node) (io.ReadCloser, error) {
			return ioutil.NopCloser(strings.NewReader("child of " + string(n.Parent))), nil
		})).To(Succeed())

		path := filepath.Join(tempDir, "input.txt")
		Expect(ioutil.WriteFile(path, []byte("hello world"), 0644)).To(Succeed())
		root, err = st.Mount(path)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tempDir)).To(Succeed())
	})

	newPipeline := func(factories ...Factory) *Pipeline {
		reg, err := NewRegistry(factories...)
		Expect(err).ToNot(HaveOccurred())

		p, err := NewPipeline(reg, nil)
		Expect(err).ToNot(HaveOccurred())
		p.Store = st
		p.PrefixSize = 4
		p.ChunkSize = 3
		p.Observer = func(e Event) {
			eventMu.Lock()
			defer eventMu.Unlock()
			events = append(events, e)
		}
		return p
	}

	statesFor := func(inode vfs.Inode, scanner string) []State {
		eventMu.Lock()
		defer eventMu.Unlock()

		var states []State
		for _, e := range events {
			if e.Inode == inode && e.Scanner == scanner {
				states = append(states, e.State)
			}
		}
		return states
	}

	It("streams every byte to each running scanner in dependency order", func() {
		p := newPipeline(factory(log, "Second", "First"), factory(log, "First"))
		Expect(p.Scanners()).To(Equal([]string{"First", "Second"}))

		Expect(p.ScanNode(context.Background(), root)).To(Succeed())
		Expect(log.get()).To(Equal([]string{
			"First:finish:f0:hello world",
			"Second:finish:f0:hello world",
		}))
		Expect(statesFor("f0", "First")).To(Equal([]State{Candidate, Running, Completed}))
	})

	It("never processes or finishes a boring scan", func() {
		boring := factory(log, "Boring")
		boring.boring = true
		boring.derive = func(env *Env) ([]*vfs.Node, error) {
			Fail("boring scan reached Finish")
			return nil, nil
		}

		p := newPipeline(boring, factory(log, "Other"))
		Expect(p.ScanNode(context.Background(), root)).To(Succeed())
		Expect(log.get()).To(Equal([]string{"Other:finish:f0:hello world"}))
		Expect(statesFor("f0", "Boring")).To(Equal([]State{Candidate, Boring}))
		Expect(st.Len()).To(Equal(1))
	})

	It("contains a panicking scanner", func() {
		bad := factory(log, "Bad")
		bad.panicIn = "process"

		p := newPipeline(bad, factory(log, "Good"))
		Expect(p.ScanNode(context.Background(), root)).To(Succeed())
		Expect(statesFor("f0", "Bad")).To(Equal([]State{Candidate, Running, Failed}))
		Expect(log.get()).To(Equal([]string{"Good:finish:f0:hello world"}))
	})

	It("contains a failing Finish", func() {
		bad := factory(log, "Bad")
		bad.derive = func(env *Env) ([]*vfs.Node, error) {
			return nil, errors.Wrap(ErrMalformed, "no date")
		}

		p := newPipeline(bad, factory(log, "Good"))
		Expect(p.ScanNode(context.Background(), root)).To(Succeed())
		Expect(statesFor("f0", "Bad")).To(Equal([]State{Candidate, Running, Failed}))
		Expect(statesFor("f0", "Good")).To(Equal([]State{Candidate, Running, Completed}))
	})

	It("scans derived nodes before the next scanner finishes", func() {
		deriver := factory(log, "Deriver")
		deriver.derive = func(env *Env) ([]*vfs.Node, error) {
			if env.Node.Inode != root.Inode {
				return nil, nil
			}
			n, err := env.Store.CreateNode(env.Node.Inode, 'x', "0", "child", 0, time.Time{})
			if err != nil {
				return nil, err
			}
			return []*vfs.Node{n}, nil
		}

		p := newPipeline(deriver, factory(log, "Later"))
		Expect(p.ScanNode(context.Background(), root)).To(Succeed())
		Expect(log.get()).To(Equal([]string{
			"Deriver:finish:f0:hello world",
			"Deriver:finish:f0|x0:child of f0",
			"Later:finish:f0|x0:child of f0",
			"Later:finish:f0:hello world",
		}))
		Expect(p.Derived()).To(Equal(int64(1)))
	})

	Context("with a scanner that derives forever", func() {
		var forever *testFactory

		BeforeEach(func() {
			forever = factory(log, "Forever")
			forever.derive = func(env *Env) ([]*vfs.Node, error) {
				n, err := env.Store.CreateNode(env.Node.Inode, 'x', "0", "child", 0, time.Time{})
				if err != nil {
					return nil, err
				}
				return []*vfs.Node{n}, nil
			}
		})

		It("stops at MaxDepth", func() {
			p := newPipeline(forever)
			p.MaxDepth = 3
			Expect(p.ScanNode(context.Background(), root)).To(Succeed())

			Expect(log.get()).To(HaveLen(4))
			Expect(log.get()[3]).To(HavePrefix("Forever:finish:f0|x0|x0|x0:"))
		})

		It("stops at MaxDerivedNodes", func() {
			p := newPipeline(forever)
			p.MaxDerivedNodes = 2
			Expect(p.ScanNode(context.Background(), root)).To(Succeed())
			Expect(log.get()).To(HaveLen(3))
		})
	})

	It("scans many top-level nodes concurrently", func() {
		nodes := []*vfs.Node{root}
		for i := 0; i < 5; i++ {
			path := filepath.Join(tempDir, fmt.Sprintf("more%d.txt", i))
			Expect(ioutil.WriteFile(path, []byte("more"), 0644)).To(Succeed())
			n, err := st.Mount(path)
			Expect(err).ToNot(HaveOccurred())
			nodes = append(nodes, n)
		}

		p := newPipeline(factory(log, "Only"))
		p.Workers = 3
		Expect(p.ScanAll(context.Background(), nodes)).To(Succeed())
		Expect(log.get()).To(HaveLen(6))
	})

	It("stops when its context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := newPipeline(factory(log, "Only"))
		Expect(p.ScanNode(ctx, root)).To(Equal(context.Canceled))
		Expect(log.get()).To(BeEmpty())
	})
})

func TestScanner(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scanner Pipeline")
}
