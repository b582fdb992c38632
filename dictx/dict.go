package dictx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gmatch/ext/ahocorasick"
	"gmatch/ext/xlog"

	"github.com/dlclark/regexp2"
	"golang.org/x/net/idna"
)

// Data Sources:
// * https://gitlab.com/malware-filter/urlhaus-filter
// * https://filterlists.com/

// each source keeps the word set it parsed last, the union of all sources
// lives in one shared automaton. reloads diff the fresh set against the
// previous one and add or remove words in place, so concurrent matchers
// never scan against a cold automaton

type Dict struct {
	Path            string                 `json:"path"`
	Concurrency     int                    `json:"concurrency"`
	CaseInsensitive bool                   `json:"case_insensitive"`
	DisableStats    bool                   `json:"disable_stats"` // stats word hit count, which has performance hit
	Sources         map[string]*SourceInfo `json:"sources"`

	// internal
	guard *ahocorasick.Guard `json:"-"`
	lock  *sync.Mutex        `json:"-"` // protects refs across source reloads
	refs  map[string]int     `json:"-"` // word -> number of sources carrying it
	stats *dictStats         `json:"-"`
}

type SourceInfo struct {
	Path                  string   `json:"path"`
	FileName              string   `json:"filename"`
	Syntax                string   `json:"syntax"`
	SyntaxRegex           string   `json:"syntax_regex"`
	SyntaxCommentBytes    []string `json:"syntax_comment_bytes"`
	SyntaxDetectLine      int      `json:"syntax_detect_line"`
	SyntaxDetectLineValid int      `json:"syntax_detect_line_valid"`
	MinWordSize           int      `json:"min_word_size"`

	// internal
	lock               *sync.Mutex          `json:"-"`
	syntaxRegex        *regexp2.Regexp      `json:"-"`
	syntaxCommentBytes map[byte]struct{}    `json:"-"`
	syntaxParserFunc   TypeSyntaxParserFunc `json:"-"`
	detected           bool                 `json:"-"`
	caseInsensitive    bool                 `json:"-"`
	words              map[string]struct{}  `json:"-"`
	stats              *syntaxParseStats    `json:"-"`
	updateTime         time.Time            `json:"-"`

	fpath string `json:"-"`
}

type syntaxParseStats struct {
	Total        int    `json:"total"`
	Valid        int    `json:"valid"`
	Invalid      int    `json:"invalid"`
	Added        int    `json:"added"`
	Removed      int    `json:"removed"`
	ElapsedParse string `json:"elapsed_parse"`
}

func (sps *syntaxParseStats) marshal() []byte {
	bs, err := json.Marshal(sps)
	if err != nil {
		return []byte("{}")
	}

	return bs
}

type dictStats struct {
	lock   *sync.Mutex
	HitMap map[string]int // word: hit_count
	hit    *atomic.Uint64
	lines  *atomic.Uint64
}

func (ds *dictStats) update(word string, disableStats bool) {

	if !disableStats {
		ds.lock.Lock()
		ds.HitMap[word]++
		ds.lock.Unlock()
	}

	ds.hit.Add(1)
}

func (d *Dict) Parse() error {
	return d.parse()
}

func (d *Dict) parse() error {

	d.guard = ahocorasick.NewGuard(nil)
	d.lock = new(sync.Mutex)
	d.refs = make(map[string]int)
	d.stats = &dictStats{
		lock:   new(sync.Mutex),
		HitMap: make(map[string]int, 0),
		hit:    &atomic.Uint64{},
		lines:  &atomic.Uint64{},
	}

	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	if len(d.Sources) > 0 && d.Concurrency > len(d.Sources) {
		d.Concurrency = len(d.Sources)
	}

	for sn, si := range d.Sources {
		si.lock = new(sync.Mutex)
		si.caseInsensitive = d.CaseInsensitive

		if si.FileName == "" {
			return fmt.Errorf("source has no filename, source: %s", sn)
		}

		fpath := d.Path
		if si.Path != "" {
			fpath = si.Path
		}
		si.fpath = path.Join(path.Clean(fpath), si.FileName)

		if _, err := os.Stat(si.fpath); err != nil {
			return fmt.Errorf("source file not exist, source: %s, error: %v", sn, err)
		}

		if si.SyntaxRegex != "" {
			xp, err := regexp2.Compile(si.SyntaxRegex, regexp2.None)
			if err != nil {
				return fmt.Errorf("invalid syntax regex, source: %s, error: %v", sn, err)
			}
			si.Syntax = syntaxTypeRegexp
			si.syntaxRegex = xp
		} else if si.Syntax != "" {
			if _, found := syntaxParserMap[si.Syntax]; !found {
				return fmt.Errorf("unknown syntax %q, source: %s", si.Syntax, sn)
			}
		}

		if len(si.SyntaxCommentBytes) == 0 {
			si.syntaxCommentBytes = syntaxCommentBytes
		} else {
			bytesMap := make(map[byte]struct{}, len(si.SyntaxCommentBytes))
			for _, b := range si.SyntaxCommentBytes {
				if len(b) != 1 {
					return fmt.Errorf("invalid syntax comment byte (length != 1): %s", b)
				}
				bytesMap[b[0]] = struct{}{}
			}
			si.syntaxCommentBytes = bytesMap
		}

		if si.SyntaxDetectLine <= 0 {
			si.SyntaxDetectLine = syntaxDetectLine
		}
		if si.SyntaxDetectLineValid <= 0 {
			si.SyntaxDetectLineValid = syntaxDetectLineValid
		}
		if si.MinWordSize <= 0 {
			si.MinWordSize = 1
		}

		si.words = make(map[string]struct{})
		si.stats = &syntaxParseStats{}
	}

	return nil
}

type loadStats struct {
	lock    *sync.Mutex
	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func newLoadStats(total int) *loadStats {
	return &loadStats{lock: new(sync.Mutex), Total: total}
}

func (ls *loadStats) update(loaded bool, err error) {
	ls.lock.Lock()
	if err != nil {
		ls.Failed++
	} else if loaded {
		ls.Success++
	} else {
		ls.Skipped++
	}
	ls.lock.Unlock()
}

func (ls *loadStats) marshal() []byte {
	bs, err := json.Marshal(ls)
	if err != nil {
		return []byte("{}")
	}

	return bs
}

// Load parses every source and applies the changes to the shared automaton.
// Sources whose file is unchanged since the last load are skipped unless
// force is set.
func (d *Dict) Load(force bool) error {

	logEvent := xlog.Logger().Info().Str("log_type", "dict").Str("op_type", "load").Bool("force", force)

	start := time.Now()

	stats := newLoadStats(len(d.Sources))

	flying := make(chan struct{}, d.Concurrency)
	var wg sync.WaitGroup
	for sn, si := range d.Sources {
		wg.Add(1)
		flying <- struct{}{}
		go func(sn string, si *SourceInfo) {
			start := time.Now()
			si.lock.Lock()
			words, loaded, err := si.parse(force)
			if err == nil && loaded {
				added, removed := d.apply(si, words)
				si.stats.Added = added
				si.stats.Removed = removed
			}
			si.lock.Unlock()
			xlog.Logger().Info().Str("log_type", "dict").Str("op_type", "load").Str("source", sn).Str("syntax", si.Syntax).Bool("loaded", loaded).RawJSON("stats", si.stats.marshal()).Dur("elapsed_time", time.Since(start)).Err(err).Msg("")
			stats.update(loaded, err)
			<-flying
			wg.Done()
		}(sn, si)
	}
	wg.Wait()

	logEvent.Dur("elapsed_time", time.Since(start)).RawJSON("stats", stats.marshal()).Int("words", d.guard.WordCount()).Int("nodes", d.guard.NodeCount())

	if stats.Failed > 0 {
		err := fmt.Errorf("failed to load %d of %d sources", stats.Failed, stats.Total)
		logEvent.Err(err).Msg("")
		return err
	}
	logEvent.Msg("")
	return nil
}

// error condition:
// 1. source file not readable
// 2. auto-detected syntax stopped matching the content
func (si *SourceInfo) parse(force bool) (map[string]struct{}, bool, error) {

	start := time.Now()

	st, err := os.Stat(si.fpath)
	if err != nil {
		return nil, false, err
	}
	if !force && st.ModTime().Equal(si.updateTime) {
		return nil, false, nil
	}

	if si.syntaxParserFunc == nil {
		if err := si.detectSyntaxParser(); err != nil {
			return nil, false, err
		}
	}

	fr, err := openSourceReader(si.fpath)
	if err != nil {
		return nil, false, err
	}
	defer fr.Close()

	stats := &syntaxParseStats{}

	words := make(map[string]struct{}, len(si.words))

	sc := bufio.NewScanner(fr)
	for sc.Scan() {
		w, kind := si.syntaxParserFunc(sc.Text())
		if kind == ruleTypeComment {
			continue
		}
		if kind != ruleTypeWord || len(w) < si.MinWordSize {
			stats.Invalid++
			continue
		}
		if si.caseInsensitive {
			w = strings.ToLower(w)
		}
		if syntaxDomainOriented[si.Syntax] {
			// store the a-label form so wire-format domains match
			as, err := idna.Punycode.ToASCII(w)
			if err != nil || len(as) == 0 {
				stats.Invalid++
				continue
			}
			w = as
		}
		words[w] = struct{}{}
		stats.Valid++
	}
	if err := sc.Err(); err != nil {
		return nil, false, err
	}

	if si.detected && stats.Valid < si.SyntaxDetectLineValid {
		return nil, false, fmt.Errorf("file: %s hasn't enough words that can be parsed as %v", si.fpath, si.Syntax)
	}

	stats.Total = stats.Valid + stats.Invalid

	// update stats
	si.stats.Total = stats.Total
	si.stats.Invalid = stats.Invalid
	si.stats.Valid = stats.Valid
	si.stats.ElapsedParse = time.Since(start).String()
	si.updateTime = st.ModTime()

	return words, true, nil
}

// apply diffs the source's previous word set against words, updating the
// shared refcounts and the automaton in place. caller holds si.lock.
func (d *Dict) apply(si *SourceInfo, words map[string]struct{}) (added int, removed int) {

	d.lock.Lock()
	defer d.lock.Unlock()

	for w := range si.words {
		if _, keep := words[w]; keep {
			continue
		}
		d.refs[w]--
		if d.refs[w] <= 0 {
			delete(d.refs, w)
			d.guard.RemoveString(w)
			removed++
		}
	}
	for w := range words {
		if _, had := si.words[w]; had {
			continue
		}
		d.refs[w]++
		if d.refs[w] == 1 {
			d.guard.AddString(w)
			added++
		}
	}
	si.words = words

	return added, removed
}

type Match struct {
	Pos  int    `json:"pos"` // offset of the final byte of the word
	Word string `json:"word"`
}

// MatchString scans s and returns every dictionary word ending inside it, in
// end position order. A concurrent reload can release the state a scan sits
// on, the scan recovers by re-entering from the root at the current offset.
func (d *Dict) MatchString(s string) []Match {

	if d.CaseInsensitive {
		s = strings.ToLower(s)
	}

	g := d.guard
	var matches []Match

	cur := ahocorasick.Root
	for i := 0; i < len(s); i++ {
		next, err := g.Traverse(cur, ahocorasick.Letter(s[i]))
		if err != nil {
			cur = ahocorasick.Root
			next, err = g.Traverse(cur, ahocorasick.Letter(s[i]))
			if err != nil {
				return matches
			}
		}
		cur = next

		for n := cur; n != ahocorasick.Root; {
			term, err := g.Terminal(n)
			if err != nil {
				break
			}
			if term {
				sig, err := g.Signature(n)
				if err != nil {
					break
				}
				w := sig.String()
				matches = append(matches, Match{Pos: i, Word: w})
				d.stats.update(w, d.DisableStats)
			}
			if n, err = g.SuffixLink(n); err != nil {
				break
			}
		}
	}
	d.stats.lines.Add(1)

	return matches
}

type DictHitStats struct {
	HitMap  map[string]int `json:"hit_map"`
	Total   int            `json:"total"`
	Scanned int            `json:"scanned"`
	Words   int            `json:"words"`
	Nodes   int            `json:"nodes"`
}

func (d *Dict) GetStats() string {

	m := make(map[string]int)
	if !d.DisableStats {
		d.stats.lock.Lock()
		m = d.stats.HitMap
		defer d.stats.lock.Unlock()
	}

	res := &DictHitStats{
		HitMap:  m,
		Total:   int(d.stats.hit.Load()),
		Scanned: int(d.stats.lines.Load()),
		Words:   d.guard.WordCount(),
		Nodes:   d.guard.NodeCount(),
	}

	bs, err := json.MarshalIndent(res, "", "\t")
	if err != nil {
		return "{}"
	}
	return string(bs)
}

type sourceContentMarshal struct {
	Stats map[string]int      `json:"stats"`
	Words map[string]struct{} `json:"words"`
}

// marshal one source's parsed word set into string
func (d *Dict) MarshalSource(name string) string {
	si := d.Sources[name]
	if si == nil {
		return "{\"message\": \"invalid source name\"}"
	}

	si.lock.Lock()
	words := si.words
	si.lock.Unlock()

	res := &sourceContentMarshal{
		Stats: map[string]int{"words": len(words)},
		Words: words,
	}

	bs, err := json.MarshalIndent(res, "", " ")
	if err != nil {
		return "{\"message\": \"failed to marshal source content\"}"
	}
	return string(bs)
}

// Dot renders the current automaton for graphviz.
func (d *Dict) Dot() string {
	return d.guard.Dot()
}

// Guard exposes the shared automaton for direct traversal.
func (d *Dict) Guard() *ahocorasick.Guard {
	return d.guard
}
