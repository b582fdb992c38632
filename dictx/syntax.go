package dictx

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
)

type TypeSyntaxParserFunc func(s string) (word string, kind uint8)

const (
	ruleTypeComment uint8 = iota
	ruleTypeInvalid
	ruleTypeWord

	syntaxTypePlain   string = "plain"
	syntaxTypeHosts   string = "hosts"
	syntaxTypeAdblock string = "adblock"
	syntaxTypeDnsmasq string = "dnsmasq"
	syntaxTypeRegexp  string = "regexp"

	syntaxDetectLine      int = 100
	syntaxDetectLineValid int = 20

	maxWordSize = 4096
)

// Copy From golang souce code
var asciiSpace = [256]bool{'\t': true, '\n': true, '\v': true, '\f': true, '\r': true, ' ': true}

var syntaxCommentBytes = map[byte]struct{}{'#': {}, '!': {}, '[': {}, ';': {}, ' ': {}, '\t': {}, '\n': {}, '\v': {}, '\f': {}, '\r': {}}

var syntaxParserMap = map[string]func(s string, commentBytes map[byte]struct{}) (word string, kind uint8){
	syntaxTypePlain:   parseSyntaxPlain,
	syntaxTypeHosts:   parseSyntaxHosts,
	syntaxTypeAdblock: parseSyntaxAdblock,
	syntaxTypeDnsmasq: parseSyntaxDnsmasq,
}

// most specific first, so ties during detection never fall through to plain
var syntaxDetectOrder = []string{syntaxTypeAdblock, syntaxTypeDnsmasq, syntaxTypeHosts, syntaxTypePlain}

// entries of these syntaxes are domains, stored in idna a-label form
var syntaxDomainOriented = map[string]bool{
	syntaxTypeHosts:   true,
	syntaxTypeAdblock: true,
	syntaxTypeDnsmasq: true,
}

func inCommentBytes(s string, bm map[byte]struct{}) bool {
	if len(s) == 0 {
		return true
	}
	if bm == nil {
		return false
	}
	_, found := bm[s[0]]
	return found
}

func validateWord(s string) (string, uint8) {
	if len(s) == 0 {
		return "", ruleTypeComment
	}
	if len(s) > maxWordSize {
		return "", ruleTypeInvalid
	}
	return s, ruleTypeWord
}

// Plain Syntax (one pattern per line, inner spaces kept)
// format:
/*
# Title: sample wordlist

badword
bad phrase
*/
//
func parseSyntaxPlain(s string, commentBytes map[byte]struct{}) (string, uint8) {
	s = strings.TrimSpace(s)
	if inCommentBytes(s, commentBytes) {
		return "", ruleTypeComment
	}
	return validateWord(s)
}

// Hosts Syntax (second column, first column must be an address)
// format:
/*
127.0.0.1 ad.example.com
0.0.0.0 ad.example.com # host example
*/
//
func parseSyntaxHosts(s string, commentBytes map[byte]struct{}) (string, uint8) {
	s = strings.TrimSpace(s)

	if inCommentBytes(s, commentBytes) {
		return "", ruleTypeComment
	}
	i := 0
	for ; i < len(s) && !asciiSpace[s[i]]; i++ {
	}
	if _, err := netip.ParseAddr(s[:i]); err != nil {
		return "", ruleTypeComment
	}
	for ; i < len(s) && asciiSpace[s[i]]; i++ {
	}
	j := i + 1
	for ; j < len(s) && !asciiSpace[s[j]]; j++ {
	}

	if i > 0 && i < j && j <= len(s) {
		s = s[i:j]
	} else {
		return "", ruleTypeComment
	}

	return validateWord(s)
}

// Adblock Syntax (Adblock Plus)
// format:
/*
[Adblock Plus]
! Syntax: Adblock Plus Filter List

||0--foodwarez.da.ru^
*/
//
func parseSyntaxAdblock(s string, commentBytes map[byte]struct{}) (string, uint8) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return "", ruleTypeComment
	}

	if inCommentBytes(s, commentBytes) {
		return "", ruleTypeComment
	}
	if s[0] != '|' || s[1] != '|' || s[len(s)-1] != '^' {
		return "", ruleTypeComment
	}

	return validateWord(s[2 : len(s)-1])
}

// dnsmasq domains list (dnsmasq)
// format:
/*
server=/teams.events.data.microsoft.com/
server=/fp.measure.office.com/
*/
//
func parseSyntaxDnsmasq(s string, commentBytes map[byte]struct{}) (string, uint8) {
	s = strings.TrimSpace(s)

	if inCommentBytes(s, commentBytes) {
		return "", ruleTypeComment
	}

	p := "server=/"
	if len(s) <= len(p)+1 || s[:len(p)] != p || s[len(s)-1] != '/' {
		return "", ruleTypeComment
	}

	return validateWord(s[len(p) : len(s)-1])
}

func (si *SourceInfo) detectSyntaxParser() error {

	if f, found := syntaxParserMap[si.Syntax]; found {
		si.syntaxParserFunc = func(s string) (word string, kind uint8) {
			return f(s, si.syntaxCommentBytes)
		}
		return nil
	}

	if si.syntaxRegex != nil {
		si.Syntax = syntaxTypeRegexp
		si.syntaxParserFunc = func(s string) (string, uint8) {
			s = strings.TrimSpace(s)
			if inCommentBytes(s, si.syntaxCommentBytes) {
				return "", ruleTypeComment
			}
			m, err := si.syntaxRegex.FindStringMatch(s)
			if err != nil || m == nil {
				return "", ruleTypeInvalid
			}
			return validateWord(m.String())
		}
		return nil
	}

	// sample the head of the file, pick the parser accepting the most lines
	fr, err := openSourceReader(si.fpath)
	if err != nil {
		return err
	}
	defer fr.Close()

	mc := make(map[string]int, len(syntaxParserMap))

	sc := bufio.NewScanner(fr)
	for i := 0; i < si.SyntaxDetectLine && sc.Scan(); i++ {
		s := strings.TrimSpace(sc.Text())
		if len(s) == 0 {
			continue
		}

		for sn, sf := range syntaxParserMap {
			if w, kind := sf(s, si.syntaxCommentBytes); kind == ruleTypeWord && len(w) != 0 {
				mc[sn]++
			}
		}
	}

	maxCnt := 0
	for _, sn := range syntaxDetectOrder {
		cnt := mc[sn]
		if cnt > si.SyntaxDetectLineValid && cnt > maxCnt {
			// must allocate new value "f"
			// if use range value "sn" in func(), "sn" will always equal the last value in range
			f := syntaxParserMap[sn]
			si.syntaxParserFunc = func(s string) (word string, kind uint8) {
				return f(s, si.syntaxCommentBytes)
			}
			si.Syntax = sn
			maxCnt = cnt
		}
	}

	if si.syntaxParserFunc != nil {
		si.detected = true
		return nil
	}

	return fmt.Errorf("no valid SyntaxParser detect and no regexp syntax configured")
}

type sourceReader struct {
	io.Reader
	closers []io.Closer
}

func (r *sourceReader) Close() error {
	var err error
	for _, c := range r.closers {
		if e := c.Close(); e != nil {
			err = e
		}
	}
	return err
}

// transparent decompression, picked by filename extension
func openSourceReader(fpath string) (io.ReadCloser, error) {
	fr, err := os.Open(fpath)
	if err != nil {
		return nil, err
	}

	switch path.Ext(fpath) {
	case ".gz":
		zr, err := gzip.NewReader(fr)
		if err != nil {
			fr.Close()
			return nil, err
		}
		return &sourceReader{Reader: zr, closers: []io.Closer{zr, fr}}, nil
	case ".br":
		return &sourceReader{Reader: brotli.NewReader(fr), closers: []io.Closer{fr}}, nil
	case ".zz":
		zr := flate.NewReader(fr)
		return &sourceReader{Reader: zr, closers: []io.Closer{zr, fr}}, nil
	default:
		return fr, nil
	}
}
