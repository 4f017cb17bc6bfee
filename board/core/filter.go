// ABOUTME: Search filter over a lane's cards: case-insensitive substring match on any field.
// ABOUTME: FilterRaw tolerates malformed lane contents by coercing and logging instead of failing.
package core

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Filter returns the cards matching query, in their original order.
//
// An empty query returns every card with a non-empty id. Otherwise a card
// matches when any string or number field contains the query, any element of
// a string array contains it, or any element of an object array has a "name"
// containing it. Cards without an id are malformed and never returned.
func Filter(cards []Card, query string) []Card {
	q := normalizeQuery(query)
	out := make([]Card, 0, len(cards))
	for _, c := range cards {
		if c.ID == "" {
			continue
		}
		if q == "" {
			out = append(out, c)
			continue
		}
		rec, err := toRecord(c)
		if err != nil {
			log.Warn().Str("component", "board.core").Str("action", "filter_encode_failed").
				Str("card_id", c.ID).Err(err).Msg("skipping card")
			continue
		}
		if recordMatches(rec, q) {
			out = append(out, c)
		}
	}
	return out
}

// FilterBoard applies Filter to every lane of m.
func FilterBoard(m BoardMap, query string) BoardMap {
	out := make(BoardMap, len(m))
	for lane, cards := range m {
		out[lane] = Filter(cards, query)
	}
	return out
}

// FilterRaw filters lane contents that arrive as untyped JSON. An object is
// coerced to its values in document order; anything else that is not an
// array yields no cards. Malformed input is logged, never returned as an error.
func FilterRaw(raw []byte, query string) []Card {
	logger := log.With().Str("component", "board.core").Str("action", "filter_raw").Logger()

	elems, err := coerceElements(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("lane contents are not an array or object; treating as empty")
		return []Card{}
	}

	q := normalizeQuery(query)
	out := make([]Card, 0, len(elems))
	for i, elem := range elems {
		var rec map[string]any
		if err := json.Unmarshal(elem, &rec); err != nil || rec == nil {
			logger.Warn().Int("index", i).Msg("lane element is not an object; skipping")
			continue
		}
		if id, _ := rec["id"].(string); id == "" {
			continue
		}
		if q != "" && !recordMatches(rec, q) {
			continue
		}
		var c Card
		if err := json.Unmarshal(elem, &c); err != nil {
			logger.Warn().Int("index", i).Err(err).Msg("lane element does not decode as a card; skipping")
			continue
		}
		c.ensureCollections()
		out = append(out, c)
	}
	return out
}

// coerceElements returns the elements of a JSON array, or the values of a
// JSON object in document order.
func coerceElements(raw []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errEmptyLane
	}
	switch trimmed[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, err
		}
		return elems, nil
	case '{':
		log.Warn().Str("component", "board.core").Str("action", "filter_coerce_object").
			Msg("lane contents arrived as an object; coercing values to a list")
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var elems []json.RawMessage
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			var v json.RawMessage
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return elems, nil
	default:
		return nil, errNotCollection
	}
}

type filterError string

func (e filterError) Error() string { return string(e) }

const (
	errEmptyLane     filterError = "empty lane contents"
	errNotCollection filterError = "lane contents are a scalar"
)

// normalizeQuery lowercases q. Whitespace is significant; only "" is empty.
func normalizeQuery(q string) string {
	return strings.ToLower(q)
}

func toRecord(c Card) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func recordMatches(rec map[string]any, q string) bool {
	for _, v := range rec {
		switch val := v.(type) {
		case string:
			if containsFold(val, q) {
				return true
			}
		case float64:
			if containsFold(strconv.FormatFloat(val, 'f', -1, 64), q) {
				return true
			}
		case []any:
			for _, elem := range val {
				switch e := elem.(type) {
				case string:
					if containsFold(e, q) {
						return true
					}
				case map[string]any:
					if name, ok := e["name"].(string); ok && containsFold(name, q) {
						return true
					}
				}
			}
		}
	}
	return false
}

func containsFold(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}
