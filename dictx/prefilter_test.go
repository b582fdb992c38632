package dictx

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"testing"

	"gmatch/ext/ahocorasick"

	"github.com/FastFilter/xorfilter"
	"github.com/OneOfOne/xxhash"
	bloom "github.com/bits-and-blooms/bloom/v3"
	cuckoofilter "github.com/panmari/cuckoofilter"
	"github.com/twmb/murmur3"
)

// a membership prefilter in front of the automaton can reject most absent
// candidates without taking the read lock or walking suffix links
// all of these are probabilistic structures, a prefilter hit is only a hint
// and must be confirmed against the trie, a prefilter miss is authoritative
// because none of them produce false negatives
//
// measurements below run on a synthetic corpus, the false positive rate is a
// property of the data set and will differ on real word lists
// combining structures or hash functions lowers the false positive further,
// at the price of memory and one more lookup per candidate

const (
	prefilterSetSize   = 1 << 15
	prefilterProbeSize = 1 << 16
)

func randomHost(r *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789-"
	bs := make([]byte, 8+r.Intn(12))
	for i := range bs {
		bs[i] = letters[r.Intn(len(letters))]
	}
	return string(bs) + ".example"
}

func genPrefilterSet(n int, seed int64) map[string]bool {
	r := rand.New(rand.NewSource(seed))
	set := make(map[string]bool, n)
	for len(set) < n {
		set[randomHost(r)] = true
	}
	return set
}

func genPrefilterProbes(n int, seed int64) []string {
	r := rand.New(rand.NewSource(seed))
	probes := make([]string, n)
	for i := range probes {
		probes[i] = randomHost(r)
	}
	return probes
}

// exact membership through the public api, no suffix links involved
func lookupWord(tr *ahocorasick.Trie, s string) bool {
	cur := ahocorasick.Root
	for i := 0; i < len(s); i++ {
		next, err := tr.Child(cur, ahocorasick.Letter(s[i]))
		if err != nil || next == ahocorasick.Undefined {
			return false
		}
		cur = next
	}
	term, err := tr.Terminal(cur)
	return err == nil && term
}

func TestPrefilterBloom(t *testing.T) {

	set := genPrefilterSet(prefilterSetSize, 20230819)

	// to stable the fp, it increase cap (more memory usage)
	bfilter := bloom.NewWithEstimates(uint(len(set)), 1.0/1000.0)
	for k := range set {
		bfilter.AddString(k)
	}

	fmt.Printf("total count: %d, bloom filter size: %d, cap: %d\n", len(set), bfilter.ApproximatedSize(), bfilter.Cap())

	for k := range set {
		if !bfilter.TestString(k) {
			t.Errorf("[+] bloom filter dropped member %q\n", k)
		}
	}

	probes := genPrefilterProbes(prefilterProbeSize, 20230820)

	fp := 0 // false positive
	for _, k := range probes {
		if !set[k] && bfilter.TestString(k) {
			fp++
		}
	}

	rate := float64(fp) / float64(len(probes))
	fmt.Printf("total lookup: %d, false positive: %d(%f)\n", len(probes), fp, rate)
	// target 0.001, bound leaves a 10x margin
	if rate > 0.01 {
		t.Errorf("[+] bloom false positive rate %f out of bound\n", rate)
	}
}

func TestPrefilterCuckoo(t *testing.T) {

	set := genPrefilterSet(prefilterSetSize, 20230819)

	// increase numElements to decrease the fpp
	cf := cuckoofilter.NewFilter(uint(len(set) * 4))
	for k := range set {
		if !cf.Insert([]byte(k)) {
			t.Errorf("[+] cuckoo filter rejected insert of %q\n", k)
		}
	}

	fmt.Printf("total size: %d, cuckoo filter: %d, load factor: %f\n", len(set), cf.Count(), cf.LoadFactor())

	for k := range set {
		if !cf.Lookup([]byte(k)) {
			t.Errorf("[+] cuckoo filter dropped member %q\n", k)
		}
	}

	probes := genPrefilterProbes(prefilterProbeSize, 20230820)

	fp := 0
	for _, k := range probes {
		if !set[k] && cf.Lookup([]byte(k)) {
			fp++
		}
	}

	rate := float64(fp) / float64(len(probes))
	fmt.Printf("total lookup: %d, false positive: %d(%f)\n", len(probes), fp, rate)
	if rate > 0.05 {
		t.Errorf("[+] cuckoo false positive rate %f out of bound\n", rate)
	}
}

func TestPrefilterXorXxhash(t *testing.T) {
	xorPrefilter(t, xxhash.ChecksumString64)
}

func TestPrefilterXorFnv(t *testing.T) {
	sum64 := func(s string) uint64 {
		fsum := fnv.New64()
		fsum.Write([]byte(s))
		return fsum.Sum64()
	}
	xorPrefilter(t, sum64)
}

func TestPrefilterXorMurmur3(t *testing.T) {
	sum64 := func(s string) uint64 {
		hasher := murmur3.New64()
		hasher.Write([]byte(s))
		return hasher.Sum64()
	}
	xorPrefilter(t, sum64)
}

// depend on hash function, normally < 0.005
func xorPrefilter(t *testing.T, sum64 func(string) uint64) {

	set := genPrefilterSet(prefilterSetSize, 20230819)

	cnts := make(map[uint64]bool, len(set))
	for k := range set {
		cnts[sum64(k)] = true
	}
	dupCnt := len(set) - len(cnts)
	fmt.Printf("key duplicate count: %d, hash collision rate: %f\n", dupCnt, float64(dupCnt)/float64(len(set)))

	// xor filter construction rejects duplicate keys
	nums := make([]uint64, 0, len(cnts))
	for u6 := range cnts {
		nums = append(nums, u6)
	}

	xpbf, err := xorfilter.PopulateBinaryFuse8(nums)
	if err != nil {
		t.Fatalf("[+] PopulateBinaryFuse8: %v\n", err)
	}
	xpf, err := xorfilter.PopulateFuse8(nums)
	if err != nil {
		t.Fatalf("[+] PopulateFuse8: %v\n", err)
	}
	xf, err := xorfilter.Populate(nums)
	if err != nil {
		t.Fatalf("[+] Populate: %v\n", err)
	}

	for k := range set {
		u6 := sum64(k)
		if !xpbf.Contains(u6) || !xpf.Contains(u6) || !xf.Contains(u6) {
			t.Errorf("[+] xor filter dropped member %q\n", k)
		}
	}

	probes := genPrefilterProbes(prefilterProbeSize, 20230820)

	xpbfFp := 0
	xpfFp := 0
	xfFp := 0
	fp := 0

	for _, k := range probes {
		if set[k] {
			continue
		}
		u6 := sum64(k)
		if xpbf.Contains(u6) {
			xpbfFp++
		}
		if xpf.Contains(u6) {
			xpfFp++
		}
		if xf.Contains(u6) {
			xfFp++
		}

		// this can significantly lower the false positive
		if xpbf.Contains(u6) && xpf.Contains(u6) && xf.Contains(u6) {
			fp++
		}
	}

	fmt.Printf("total lookup: %d, all false positive: %d(%f)\n", len(probes), fp, float64(fp)/float64(len(probes)))
	fmt.Printf("total lookup: %d, PopulateBinaryFuse8 false positive: %d(%f)\n", len(probes), xpbfFp, float64(xpbfFp)/float64(len(probes)))
	fmt.Printf("total lookup: %d, PopulateFuse8 false positive: %d(%f)\n", len(probes), xpfFp, float64(xpfFp)/float64(len(probes)))
	fmt.Printf("total lookup: %d, Populate false positive: %d(%f)\n", len(probes), xfFp, float64(xfFp)/float64(len(probes)))

	for n, c := range map[string]int{"PopulateBinaryFuse8": xpbfFp, "PopulateFuse8": xpfFp, "Populate": xfFp} {
		if rate := float64(c) / float64(len(probes)); rate > 0.02 {
			t.Errorf("[+] %s false positive rate %f out of bound\n", n, rate)
		}
	}
}

// a prefilter hit is confirmed against the trie, a miss is final, so the
// composition answers exact membership on any data set
func TestPrefilterPipeline(t *testing.T) {

	set := genPrefilterSet(1<<14, 20230821)

	tr := ahocorasick.New()
	bfilter := bloom.NewWithEstimates(uint(len(set)), 1.0/1000.0)
	for k := range set {
		if _, err := tr.AddString(k); err != nil {
			t.Fatalf("[+] add %q: %v\n", k, err)
		}
		bfilter.AddString(k)
	}

	probes := genPrefilterProbes(1<<15, 20230822)

	pass := 0
	for _, k := range probes {
		hint := bfilter.TestString(k)
		if hint {
			pass++
		}
		if verdict := hint && lookupWord(tr, k); verdict != set[k] {
			t.Errorf("[+] pipeline verdict mismatch on %q\n", k)
		}
	}
	for k := range set {
		if !(bfilter.TestString(k) && lookupWord(tr, k)) {
			t.Errorf("[+] pipeline dropped member %q\n", k)
		}
	}

	fmt.Printf("probes passed prefilter: %d of %d\n", pass, len(probes))
}

func BenchmarkPrefilterBloom(b *testing.B) {
	set := genPrefilterSet(prefilterSetSize, 20230819)
	bfilter := bloom.NewWithEstimates(uint(len(set)), 1.0/1000.0)
	for k := range set {
		bfilter.AddString(k)
	}
	probes := genPrefilterProbes(1<<12, 20230820)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bfilter.TestString(probes[i%len(probes)])
	}
}

func BenchmarkPrefilterCuckoo(b *testing.B) {
	set := genPrefilterSet(prefilterSetSize, 20230819)
	cf := cuckoofilter.NewFilter(uint(len(set) * 4))
	for k := range set {
		cf.Insert([]byte(k))
	}
	probes := genPrefilterProbes(1<<12, 20230820)
	bss := make([][]byte, len(probes))
	for i, k := range probes {
		bss[i] = []byte(k)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cf.Lookup(bss[i%len(bss)])
	}
}

func BenchmarkPrefilterXorBinaryFuse8(b *testing.B) {
	set := genPrefilterSet(prefilterSetSize, 20230819)
	cnts := make(map[uint64]bool, len(set))
	for k := range set {
		cnts[xxhash.ChecksumString64(k)] = true
	}
	nums := make([]uint64, 0, len(cnts))
	for u6 := range cnts {
		nums = append(nums, u6)
	}
	xpbf, err := xorfilter.PopulateBinaryFuse8(nums)
	if err != nil {
		b.Fatalf("[+] PopulateBinaryFuse8: %v\n", err)
	}
	probes := genPrefilterProbes(1<<12, 20230820)
	sums := make([]uint64, len(probes))
	for i, k := range probes {
		sums[i] = xxhash.ChecksumString64(k)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		xpbf.Contains(sums[i%len(sums)])
	}
}

func BenchmarkConfirmLookup(b *testing.B) {
	set := genPrefilterSet(1<<14, 20230821)
	tr := ahocorasick.New()
	for k := range set {
		tr.AddString(k)
	}
	probes := genPrefilterProbes(1<<12, 20230822)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lookupWord(tr, probes[i%len(probes)])
	}
}

func BenchmarkSumXxhash(b *testing.B) {
	probes := genPrefilterProbes(1<<12, 20230820)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		xxhash.ChecksumString64(probes[i%len(probes)])
	}
}

func BenchmarkSumMurmur3(b *testing.B) {
	probes := genPrefilterProbes(1<<12, 20230820)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		murmur3.StringSum64(probes[i%len(probes)])
	}
}
