package compressor

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"es3/agenda"
)

// driverTask wraps a closure as an Unbound task, the way uploader/
// downloader tasks schedule nested compressor work: the agenda only
// exits once every task (including this driving one) has finished, so
// compressor sub-tasks are never starved by a premature empty-queue exit.
type driverTask struct {
	agenda.Base
	fn func(ag *agenda.Agenda) error
}

func (driverTask) Class() agenda.Class { return agenda.Unbound }
func (driverTask) String() string      { return "driver" }
func (d *driverTask) Run(ag *agenda.Agenda, segs []*agenda.Segment) error {
	return d.fn(ag)
}

func TestCompressDecompressRoundTripSmallFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.txt")
	data := bytes.Repeat([]byte("hello world\n"), 100)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	gz := filepath.Join(dir, "small.gz")
	ag := agenda.New(agenda.Limits{Unbound: 1, CPUBound: 2, IOBound: 1}, 1024, 4, true, true)
	var compressErr error
	ag.Schedule(&driverTask{fn: func(ag *agenda.Agenda) error {
		compressErr = CompressFile(ag, src, gz, 4)
		return compressErr
	}})
	ag.Run()
	if compressErr != nil {
		t.Fatalf("CompressFile: %v", compressErr)
	}

	out := filepath.Join(dir, "small.out")
	if err := DecompressFile(gz, out); err != nil {
		t.Fatalf("DecompressFile: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}
}

func TestCompressDecompressRoundTripBlockParallel(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")

	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 5*BlockThreshold)
	rng.Read(data)
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	gz := filepath.Join(dir, "big.gz")
	ag := agenda.New(agenda.Limits{Unbound: 1, CPUBound: 4, IOBound: 1}, 1024, 4, true, true)
	var compressErr error
	ag.Schedule(&driverTask{fn: func(ag *agenda.Agenda) error {
		compressErr = CompressFile(ag, src, gz, 4)
		return compressErr
	}})
	ag.Run()
	if compressErr != nil {
		t.Fatalf("CompressFile: %v", compressErr)
	}

	out := filepath.Join(dir, "big.out")
	if err := DecompressFile(gz, out); err != nil {
		t.Fatalf("DecompressFile: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(data))
	}

	if _, err := os.Stat(gz + ".blk0"); !os.IsNotExist(err) {
		t.Fatalf("expected scratch blocks to be cleaned up, blk0 stat err=%v", err)
	}
}
