package table_test

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/hsuanchi1506/hisat-3n/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tableHeader = "ref\tpos\tstrand\tconvertedBaseQualities\tconvertedBaseCount\tunconvertedBaseQualities\tunconvertedBaseCount\n"

// runTable executes a full tabulation over literal reference and SAM text and
// returns the produced TSV.
func runTable(t *testing.T, ref string, samLines []string, mutate func(*table.Opts)) (string, error) {
	t.Helper()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	refPath := filepath.Join(tmpdir, "ref.fa")
	require.NoError(t, os.WriteFile(refPath, []byte(ref), 0644))
	samPath := filepath.Join(tmpdir, "aln.sam")
	require.NoError(t, os.WriteFile(samPath, []byte(strings.Join(samLines, "")), 0644))
	outPath := filepath.Join(tmpdir, "out.tsv")

	opts := table.DefaultOpts
	opts.AlignmentsPath = samPath
	opts.RefPath = refPath
	opts.OutputPath = outPath
	opts.BaseChange = "C,T"
	if mutate != nil {
		mutate(&opts)
	}
	err := table.Run(context.Background(), opts)
	if err != nil {
		return "", err
	}
	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	return string(out), nil
}

func samRecord(name, flag, chrom, pos, cigar, seq, qual string, tags ...string) string {
	fields := []string{name, flag, chrom, pos, "60", cigar, "*", "0", "0", seq, qual}
	fields = append(fields, tags...)
	return strings.Join(fields, "\t") + "\n"
}

func TestRunSingleConvertedRead(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "3M", "TGT", "III", "MD:Z:0C2"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tI\t1\t\t0\n", out)
}

func TestRunSingleUnconvertedRead(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "3M", "CGT", "FFF", "MD:Z:3"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\t\t0\tF\t1\n", out)
}

func TestRunDedupSameRead(t *testing.T) {
	// Two records with the same name both report the conversion; only the
	// first observation counts.
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r7", "0", "c1", "2", "3M", "TGT", "III", "MD:Z:0C2"),
		samRecord("r7", "0", "c1", "2", "3M", "TGT", "JJJ", "MD:Z:0C2"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tI\t1\t\t0\n", out)
}

func TestRunRetractionOnContradiction(t *testing.T) {
	// The same read reports converted then unconverted at position 2; its
	// evidence is withdrawn and the position has nothing left to report.
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r7", "0", "c1", "2", "3M", "TGT", "III", "MD:Z:0C2"),
		samRecord("r7", "0", "c1", "2", "3M", "CGT", "FFF", "MD:Z:3"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader, out)
}

func TestRunRetractionKeepsOtherReads(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "1M", "T", "H", "MD:Z:0C0"),
		samRecord("r7", "0", "c1", "2", "3M", "TGT", "III", "MD:Z:0C2"),
		samRecord("r7", "0", "c1", "2", "3M", "CGT", "FFF", "MD:Z:3"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tH\t1\t\t0\n", out)
}

func TestRunCGOnly(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "1M", "T", "H", "MD:Z:0C0"),
	}, func(opts *table.Opts) {
		opts.CGOnly = true
	})
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tH\t1\t\t0\n", out)
}

func TestRunCrossChromosomeFlush(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n>c2\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0"),
		samRecord("r2", "0", "c2", "2", "1M", "T", "J", "MD:Z:0C0"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tI\t1\t\t0\n"+"c2\t2\t+\tJ\t1\t\t0\n", out)
}

func TestRunReverseStrandRead(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "16", "c1", "3", "1M", "A", "F", "MD:Z:0G0"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t3\t-\tF\t1\t\t0\n", out)
}

func TestRunTwoReadsOnePosition(t *testing.T) {
	out, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0"),
		samRecord("r2", "0", "c1", "2", "1M", "T", "J", "MD:Z:0C0"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tIJ\t2\t\t0\n", out)
}

func TestRunSkipsHeadersAndJunk(t *testing.T) {
	sam := []string{
		"@HD\tVN:1.6\tSO:coordinate\n",
		"@SQ\tSN:c1\tLN:4\n",
		samRecord("u1", "4", "*", "0", "*", "*", "*"),
		"not\ta\tsam\n",
		samRecord("r1", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0"),
	}
	out, err := runTable(t, ">c1\nACGT\n", sam, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tI\t1\t\t0\n", out)
}

func TestRunNotSorted(t *testing.T) {
	_, err := runTable(t, ">c1\nACGTACGT\n", []string{
		samRecord("r1", "0", "c1", "5", "1M", "A", "I", "MD:Z:1"),
		samRecord("r2", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0"),
	}, nil)
	var notSorted *table.NotSortedError
	require.ErrorAs(t, err, &notSorted)
	assert.Equal(t, "c1", notSorted.Chromosome)
	assert.Equal(t, int64(5), notSorted.LastPos)
	assert.Equal(t, int64(2), notSorted.NewPos)
}

func TestRunUnknownChromosome(t *testing.T) {
	_, err := runTable(t, ">c1\nACGT\n", []string{
		samRecord("r1", "0", "cX", "2", "1M", "T", "I", "MD:Z:0C0"),
	}, nil)
	var unknown *table.UnknownChromosomeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "cX", unknown.Name)
}

func TestRunConflictingFilters(t *testing.T) {
	_, err := runTable(t, ">c1\nACGT\n", nil, func(opts *table.Opts) {
		opts.UniqueOnly = true
		opts.MultipleOnly = true
	})
	assert.Error(t, err)
}

func TestRunBlockSlides(t *testing.T) {
	// A tiny block size forces repeated window slides within one chromosome.
	const n = 50
	ref := ">c1\n" + strings.Repeat("C", n) + "\n"
	var sam []string
	for i := 1; i <= n; i++ {
		sam = append(sam, samRecord(fmt.Sprintf("r%03d", i), "0", "c1",
			fmt.Sprintf("%d", i), "1M", "T", "I", "MD:Z:0C0"))
	}
	out, err := runTable(t, ref, sam, func(opts *table.Opts) {
		opts.LoadingBlockSize = 8
		opts.Threads = 4
	})
	require.NoError(t, err)
	want := tableHeader
	for i := 1; i <= n; i++ {
		want += fmt.Sprintf("c1\t%d\t+\tI\t1\t\t0\n", i)
	}
	assert.Equal(t, want, out)
}

func TestRunRevisitedChromosomeReloads(t *testing.T) {
	// c1 again after c2 reloads the window; the source ordering check is
	// per-chromosome only.
	out, err := runTable(t, ">c1\nACGT\n>c2\nACGT\n", []string{
		samRecord("r1", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0"),
		samRecord("r2", "0", "c2", "2", "1M", "T", "J", "MD:Z:0C0"),
		samRecord("r3", "0", "c1", "2", "1M", "T", "K", "MD:Z:0C0"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+
		"c1\t2\t+\tI\t1\t\t0\n"+
		"c2\t2\t+\tJ\t1\t\t0\n"+
		"c1\t2\t+\tK\t1\t\t0\n", out)
}

func TestRunGzippedAlignments(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	refPath := filepath.Join(tmpdir, "ref.fa")
	require.NoError(t, os.WriteFile(refPath, []byte(">c1\nACGT\n"), 0644))

	samPath := filepath.Join(tmpdir, "aln.sam.gz")
	f, err := os.Create(samPath)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	_, err = zw.Write([]byte(samRecord("r1", "0", "c1", "2", "1M", "T", "I", "MD:Z:0C0")))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	outPath := filepath.Join(tmpdir, "out.tsv")
	opts := table.DefaultOpts
	opts.AlignmentsPath = samPath
	opts.RefPath = refPath
	opts.OutputPath = outPath
	opts.BaseChange = "C,T"
	require.NoError(t, table.Run(context.Background(), opts))

	out, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"c1\t2\t+\tI\t1\t\t0\n", string(out))
}

func TestRunChrNameNormalization(t *testing.T) {
	// The SAM names "chr1" while the FASTA header says "1"; -added-chrname
	// reconciles them.
	out, err := runTable(t, ">1\nACGT\n", []string{
		samRecord("r1", "0", "chr1", "2", "1M", "T", "I", "MD:Z:0C0"),
	}, func(opts *table.Opts) {
		opts.AddedChrName = true
	})
	require.NoError(t, err)
	assert.Equal(t, tableHeader+"chr1\t2\t+\tI\t1\t\t0\n", out)
}
