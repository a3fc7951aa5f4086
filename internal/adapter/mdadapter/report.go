package mdadapter

import (
	"bytes"
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jgivc/downloadr/internal/entity"
	"github.com/jgivc/downloadr/internal/util"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const noValue = "-"

var statusOrder = map[entity.Status]int{
	entity.StatusRunning:   0,
	entity.StatusQueued:    1,
	entity.StatusPaused:    2,
	entity.StatusFailed:    3,
	entity.StatusCancelled: 4,
	entity.StatusCompleted: 5,
}

// Reporter renders the live status table of all items.
type Reporter struct {
	md goldmark.Markdown
}

func NewReporter() *Reporter {
	return &Reporter{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				NewProgressExtension(),
			),
			goldmark.WithRendererOptions(
				html.WithXHTML(),
			),
		),
	}
}

// Markdown builds the report table. Active items come first.
func (r *Reporter) Markdown(items []*entity.Item, desiredConcurrency int) []byte {
	rows := slices.Clone(items)
	slices.SortStableFunc(rows, func(a, b *entity.Item) int {
		if c := cmp.Compare(statusOrder[a.Status], statusOrder[b.Status]); c != 0 {
			return c
		}

		return cmp.Compare(a.DestinationPath, b.DestinationPath)
	})

	var (
		buf        bytes.Buffer
		throughput float64
		running    int
	)

	buf.WriteString("# Downloads\n\n")
	buf.WriteString("| ID | Name | Status | Progress | Size | Speed | ETA |\n")
	buf.WriteString("|---|---|---|---|---|---|---|\n")

	for _, item := range rows {
		speed := noValue
		if item.Status == entity.StatusRunning {
			running++

			if item.AverageBytesPerSecond != nil {
				throughput += *item.AverageBytesPerSecond
				speed = util.HumanRate(*item.AverageBytesPerSecond)
			}
		}

		eta := noValue
		if d, ok := item.EstimatedTimeRemaining(); ok && item.Status == entity.StatusRunning {
			eta = util.HumanDuration(d)
		}

		fmt.Fprintf(&buf, "| %s | %s | %s | %s | %s | %s | %s |\n",
			item.ShortID(),
			escapeCell(filepath.Base(item.DestinationPath)),
			item.Status,
			progressCell(item),
			sizeCell(item),
			speed,
			eta,
		)
	}

	fmt.Fprintf(&buf, "\n%d items, %d running, total %s, desired concurrency %d\n",
		len(rows), running, util.HumanRate(throughput), desiredConcurrency)

	return buf.Bytes()
}

// HTML renders the report table to an HTML fragment.
func (r *Reporter) HTML(items []*entity.Item, desiredConcurrency int) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(r.Markdown(items, desiredConcurrency), &buf); err != nil {
		return nil, fmt.Errorf("cannot render report: %w", err)
	}

	return buf.Bytes(), nil
}

func progressCell(item *entity.Item) string {
	if item.Status == entity.StatusCompleted {
		return "{{progress: 100}}"
	}

	frac := item.CompletionFraction()
	if item.TotalBytes == nil || *item.TotalBytes <= 0 {
		if item.DownloadedBytes > 0 {
			return "{{progress: ?}}"
		}

		frac = 0
	}

	return "{{progress: " + strconv.FormatFloat(frac*100, 'f', 1, 64) + "}}"
}

func sizeCell(item *entity.Item) string {
	if item.TotalBytes == nil {
		return util.HumanBytes(item.DownloadedBytes) + " / ?"
	}

	return util.HumanBytes(item.DownloadedBytes) + " / " + util.HumanBytes(*item.TotalBytes)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
