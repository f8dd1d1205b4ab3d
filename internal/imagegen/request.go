package imagegen

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultPixelBudget is the total pixel count every render aims for
	DefaultPixelBudget = 2_000_000
	// DefaultAspectRatio is used when the description names none
	DefaultAspectRatio = "1:1"
	// maxSeed bounds generated seeds to [0, maxSeed)
	maxSeed = 1_000_000_000

	negativeMarker = "NEGATIVE:"
)

var (
	aspectRatioRegex = regexp.MustCompile(`(?i)aspectratio:\s*(\d+:\d+)`)
	seedRegex        = regexp.MustCompile(`(?i)seed:\s*(\d+)`)
	spaceRegex       = regexp.MustCompile(`[ \t]{2,}`)
)

// Request is a fully resolved render request
type Request struct {
	Prompt         string
	NegativePrompt string
	AspectRatio    string
	Width          int
	Height         int
	Seed           int64
}

// ParseRequest pulls the aspectratio: and seed: tokens out of description,
// splits off a NEGATIVE: section and sizes the render to pixelBudget.
// seedFn supplies the seed when the description has none.
func ParseRequest(description string, pixelBudget int, seedFn func() int64) (Request, error) {
	if pixelBudget <= 0 {
		pixelBudget = DefaultPixelBudget
	}
	if seedFn == nil {
		seedFn = RandomSeed
	}

	req := Request{AspectRatio: DefaultAspectRatio}
	if match := aspectRatioRegex.FindStringSubmatch(description); match != nil {
		req.AspectRatio = match[1]
	}
	if match := seedRegex.FindStringSubmatch(description); match != nil {
		seed, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("invalid seed %q: %w", match[1], err)
		}
		req.Seed = seed
	} else {
		req.Seed = seedFn()
	}

	text := aspectRatioRegex.ReplaceAllString(description, "")
	text = seedRegex.ReplaceAllString(text, "")
	prompt, negative, _ := strings.Cut(text, negativeMarker)
	req.Prompt = strings.TrimSpace(spaceRegex.ReplaceAllString(prompt, " "))
	req.NegativePrompt = strings.TrimSpace(spaceRegex.ReplaceAllString(negative, " "))
	if req.Prompt == "" {
		return Request{}, ErrEmptyPrompt
	}

	width, height, err := CalculateDimensions(req.AspectRatio, pixelBudget)
	if err != nil {
		return Request{}, err
	}
	req.Width, req.Height = width, height
	return req, nil
}

// RandomSeed returns a seed in [0, 1e9)
func RandomSeed() int64 {
	return rand.Int64N(maxSeed)
}

// CalculateDimensions solves width*height ≈ pixelBudget at the W:H ratio and
// rounds both sides to the nearest even number.
func CalculateDimensions(aspectRatio string, pixelBudget int) (width, height int, err error) {
	ws, hs, ok := strings.Cut(aspectRatio, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", aspectRatio)
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", aspectRatio)
	}

	ratio := float64(w) / float64(h)
	exactHeight := math.Sqrt(float64(pixelBudget) / ratio)
	exactWidth := exactHeight * ratio

	return roundEven(exactWidth), roundEven(exactHeight), nil
}

func roundEven(v float64) int {
	return int(math.Round(v/2)) * 2
}
