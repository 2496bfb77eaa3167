package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/ai-pictionary/internal/catalog"
	appcfg "github.com/park285/ai-pictionary/internal/config"
	"github.com/park285/ai-pictionary/internal/sketch"
	"github.com/park285/ai-pictionary/internal/verdict"
	"github.com/park285/ai-pictionary/internal/vision"
)

// visioncheck sends one drawing to the vision API and prints the raw reply
// alongside the parsed verdict.
func main() {
	target := flag.String("target", "", "expected object; reports whether the verdict matches")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatal("usage: visioncheck [-target name] <drawing.png|jpg|svg>")
	}

	appcfg.LoadDotenv()
	baseURL := os.Getenv("VISION_BASE_URL")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	apiKey := os.Getenv("VISION_API_KEY")
	if apiKey == "" {
		log.Fatal("VISION_API_KEY is required")
	}
	opts := []vision.Option{vision.WithAPIKey(apiKey), vision.WithTimeout(30 * time.Second)}
	if m := os.Getenv("VISION_MODEL"); m != "" {
		opts = append(opts, vision.WithModel(m))
	}
	client := vision.NewClient(baseURL, opts...)

	cat, err := catalog.Load(os.Getenv("CATALOG_FILE"))
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}
	if *target != "" && !cat.Contains(*target) {
		log.Printf("warning: %q is not a catalog target; the model will never be told about it", *target)
	}
	img, err := (&sketch.FileCanvas{Path: flag.Arg(0), Upload: 256}).Snapshot()
	if err != nil {
		log.Fatalf("drawing error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	start := time.Now()
	raw, err := client.Recognize(ctx, img, vision.Instruction(cat.Targets()))
	if err != nil {
		log.Fatalf("recognize error after %s: %v", time.Since(start).Round(time.Millisecond), err)
	}
	v := verdict.Parse(raw)
	fmt.Printf("elapsed: %s\nraw: %s\nverdict: %s\n", time.Since(start).Round(time.Millisecond), raw, v.JSON())
	if *target != "" {
		fmt.Printf("match %q: %v\n", *target, v.Matches(*target))
	}
}
