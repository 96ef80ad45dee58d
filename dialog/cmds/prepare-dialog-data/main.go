package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	arg "github.com/alexflint/go-arg"
	humanize "github.com/dustin/go-humanize"
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"

	"github.com/retortml/retort/dialog"
)

const (
	baseURL  = "https://transcripts.foreverdreaming.org/viewtopic.php?"
	forumURL = "https://transcripts.foreverdreaming.org/viewforum.php?f=177"

	// forum index pagination stride
	pageStride = 78
)

func noErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	args := struct {
		OutDir     string `arg:"--out-dir" default:"data"`
		IndexPages int    `arg:"--index-pages" help:"forum index pages to crawl" default:"3"`
		MaxSeason  int    `arg:"--max-season" default:"6"`
		Volume     int    `arg:"--volume" help:"cap on collected examples" default:"12000"`
		ValidSize  int    `arg:"--valid-size" default:"100"`
		TestSize   int    `arg:"--test-size" default:"100"`
	}{}
	arg.MustParse(&args)

	noErr(os.MkdirAll(args.OutDir, 0755))

	urls, err := episodeURLs(args.IndexPages, args.MaxSeason)
	noErr(err)
	if len(urls) == 0 {
		log.Fatal(fmt.Errorf("no episode pages found under %s", forumURL))
	}
	log.Printf("found %s episode transcripts", humanize.Comma(int64(len(urls))))

	var examples []dialog.Example
	err = tqdm.With(iterators.Interval(0, len(urls)), "Scraping transcripts", func(c interface{}) (brk bool) {
		url := urls[c.(int)]
		eps, err := episodeExamples(url)
		if err != nil {
			log.Printf("skipping %s: %v", url, err)
			return false
		}
		examples = append(examples, eps...)
		return len(examples) >= args.Volume
	})
	noErr(err)

	if len(examples) > args.Volume {
		examples = examples[:args.Volume]
	}
	log.Printf("collected %s utterance/response pairs", humanize.Comma(int64(len(examples))))

	noErr(dialog.SaveSplits(args.OutDir, examples, dialog.SplitSizes{
		Valid: args.ValidSize,
		Test:  args.TestSize,
	}))
	log.Printf("wrote train/valid/test splits to %s", args.OutDir)
}

// episodeURLs walks the forum index pages newest-last and collects episode
// page links for seasons up to maxSeason.
func episodeURLs(pages, maxSeason int) ([]string, error) {
	var indexURLs []string
	for i := pages - 1; i >= 0; i-- {
		url := forumURL
		if i > 0 {
			url = fmt.Sprintf("%s&start=%d", forumURL, pageStride*i)
		}
		indexURLs = append(indexURLs, url)
	}

	var urls []string
	for _, indexURL := range indexURLs {
		doc, err := goquery.NewDocument(indexURL)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch index page %s: %v", indexURL, err)
		}

		doc.Find("a.topictitle").Each(func(i int, s *goquery.Selection) {
			title := strings.TrimSpace(s.Text())
			if len(title) < 2 {
				return
			}
			season, err := strconv.Atoi(title[:2])
			if err != nil || season > maxSeason {
				return
			}
			href, ok := s.Attr("href")
			if !ok {
				return
			}
			// keep only the topic id parameter
			parts := strings.SplitN(href, "?", 2)
			if len(parts) != 2 {
				return
			}
			urls = append(urls, baseURL+strings.SplitN(parts[1], "&", 2)[0])
		})
	}
	return urls, nil
}

// episodeExamples scrapes one transcript page and converts its dialogue into
// utterance/response pairs.
func episodeExamples(url string) ([]dialog.Example, error) {
	doc, err := goquery.NewDocument(url)
	if err != nil {
		return nil, fmt.Errorf("unable to fetch %s: %v", url, err)
	}

	var lines []string
	doc.Find("div.postbody p").Each(func(i int, s *goquery.Selection) {
		for _, line := range strings.Split(s.Text(), "\n") {
			lines = append(lines, strings.TrimSpace(line))
		}
	})

	script := dialog.CleanScript(lines, dialog.DefaultSkipSpeakers)

	// scene markers partition the script into dialogues
	var examples []dialog.Example
	var turns []string
	flush := func() {
		examples = append(examples, dialog.PairTurns(turns)...)
		turns = nil
	}
	for _, line := range script {
		if strings.HasPrefix(line, "[") {
			flush()
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		uttr := dialog.CleanUtterance(parts[len(parts)-1])
		if uttr == "" {
			continue
		}
		if len([]rune(uttr)) > dialog.MaxUtteranceLen {
			flush()
			continue
		}
		turns = append(turns, uttr)
	}
	flush()

	return examples, nil
}
