//go:build ignore

// Generates a synthetic document corpus for index benchmarking.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles  = flag.Int("files", 1000, "Number of files to generate")
	outputDir = flag.String("output", "testdata/corpus", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var topics = []string{
	"quarterly budget review", "hiking trip planning", "sourdough baking notes",
	"apartment renovation", "conference talk outline", "garden irrigation setup",
	"insurance policy comparison", "music practice log", "car maintenance history",
	"language learning progress", "photography gear research", "tax preparation checklist",
}

var sentences = []string{
	"The first draft still needs a section on %s before anyone reviews it.",
	"Most of the open questions about %s were settled in last week's discussion.",
	"Costs for %s came in higher than the original estimate suggested.",
	"There is a rough timeline for %s at the bottom of this document.",
	"Follow-up items for %s are tracked separately and linked here.",
	"Nothing about %s is final until the numbers are double checked.",
	"Earlier notes on %s turned out to be outdated and were removed.",
	"A short summary of %s goes out to everyone involved on Friday.",
}

var folders = []string{"notes", "projects", "archive", "drafts", "reference"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, f := range folders {
		if err := os.MkdirAll(filepath.Join(*outputDir, f), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
			os.Exit(1)
		}
	}

	for i := 0; i < *numFiles; i++ {
		topic := topics[rng.Intn(len(topics))]
		folder := folders[rng.Intn(len(folders))]

		var name, content string
		switch rng.Intn(10) {
		case 0:
			// A few unsupported files so failure paths get exercised.
			name = fmt.Sprintf("blob-%04d.bin", i)
			buf := make([]byte, 256+rng.Intn(1024))
			rng.Read(buf)
			content = string(buf)
		case 1, 2, 3:
			name = fmt.Sprintf("doc-%04d.md", i)
			content = markdownDoc(rng, topic)
		default:
			name = fmt.Sprintf("note-%04d.txt", i)
			content = plainDoc(rng, topic)
		}

		path := filepath.Join(*outputDir, folder, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	fmt.Printf("generated %d files under %s\n", *numFiles, *outputDir)
}

func markdownDoc(rng *rand.Rand, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.ToUpper(topic[:1])+topic[1:])
	for p := 0; p < 2+rng.Intn(4); p++ {
		b.WriteString(paragraph(rng, topic))
		b.WriteString("\n\n")
	}
	return b.String()
}

func plainDoc(rng *rand.Rand, topic string) string {
	var b strings.Builder
	for p := 0; p < 1+rng.Intn(3); p++ {
		b.WriteString(paragraph(rng, topic))
		b.WriteString("\n\n")
	}
	return b.String()
}

func paragraph(rng *rand.Rand, topic string) string {
	var b strings.Builder
	for s := 0; s < 3+rng.Intn(4); s++ {
		if s > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, sentences[rng.Intn(len(sentences))], topic)
	}
	return b.String()
}
