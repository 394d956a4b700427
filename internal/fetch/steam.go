package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSteamEndpoint = "https://api.steampowered.com"
	// SteamBatchSize is the most ids GetPlayerSummaries accepts per call.
	SteamBatchSize = 100
)

// PlayerSummary is the subset of GetPlayerSummaries the presence monitor uses.
type PlayerSummary struct {
	SteamID string `json:"steamid"`
	Name    string `json:"personaname"`
	State   int    `json:"personastate"`
	Game    string `json:"gameextrainfo"`
}

// Status is the human label for State.
func (p PlayerSummary) Status() string { return PersonaStateLabel(p.State) }

var personaStates = [...]string{
	"Offline",
	"Online",
	"Busy",
	"Away",
	"Snooze",
	"LookingToTrade",
	"LookingToPlay",
}

// PersonaStateLabel maps a Steam personastate code to its label.
func PersonaStateLabel(state int) string {
	if state >= 0 && state < len(personaStates) {
		return personaStates[state]
	}
	return "Unknown(" + strconv.Itoa(state) + ")"
}

// SteamFetcher queries the Steam Web API.
type SteamFetcher struct {
	Client   *http.Client
	Endpoint string
	Timeout  time.Duration
}

func NewSteamFetcher(hc *http.Client, endpoint string, timeout time.Duration) *SteamFetcher {
	return &SteamFetcher{Client: hc, Endpoint: endpoint, Timeout: timeout}
}

type playerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}

// Fetch returns the summaries for ids. Lists longer than SteamBatchSize are
// requested in sequential batches; the first failing batch aborts the call.
func (f *SteamFetcher) Fetch(ctx context.Context, apiKey string, ids []uint64) ([]PlayerSummary, error) {
	if apiKey == "" {
		return nil, errors.New("steam api key is empty")
	}
	var out []PlayerSummary
	for start := 0; start < len(ids); start += SteamBatchSize {
		end := min(start+SteamBatchSize, len(ids))
		players, err := f.fetchBatch(ctx, apiKey, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, players...)
	}
	return out, nil
}

func (f *SteamFetcher) fetchBatch(ctx context.Context, apiKey string, ids []uint64) ([]PlayerSummary, error) {
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = strconv.FormatUint(id, 10)
	}
	endpoint := strings.TrimRight(f.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultSteamEndpoint
	}
	q := url.Values{}
	q.Set("key", apiKey)
	q.Set("steamids", strings.Join(strIDs, ","))
	u := endpoint + "/ISteamUser/GetPlayerSummaries/v0002/?" + q.Encode()

	body, err := get(ctx, f.Client, u, f.Timeout, "application/json")
	if err != nil {
		// url.Error carries the full URL, key included.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("fetch player summaries (%d ids): %w", len(ids), err)
	}
	var resp playerSummariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode player summaries: %w", err)
	}
	return resp.Response.Players, nil
}
