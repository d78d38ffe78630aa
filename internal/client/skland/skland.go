// Package skland provides the account and attendance calls of the skland web API.
package skland

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/DIMO-Network/skland-sign/pkg/signer"
	"github.com/rs/zerolog"
)

const (
	// DefaultGrantURL issues OAuth codes for account tokens.
	DefaultGrantURL = "https://as.hypergryph.com/user/oauth2/v2/grant"
	// DefaultBaseURL is the skland API.
	DefaultBaseURL = "https://zonai.skland.com"
	// UserAgent is the skland android webview.
	UserAgent = "Mozilla/5.0 (Linux; Android 12; SM-A5560 Build/V417IR; wv) AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/101.0.4951.61 Safari/537.36; SKLand/1.52.1"

	appCode          = "4ca99fa6b56cc2ba"
	codeAlreadyDone  = 10001
	codeUnparsable   = -1
	gameArknights    = "arknights"
	gameEndfield     = "endfield"
	endfieldRefer    = "https://game.skland.com/"
	pathCred         = "/web/v1/user/auth/generate_cred_by_code"
	pathBinding      = "/api/v1/game/player/binding"
	pathArknights    = "/api/v1/game/attendance"
	pathEndfield     = "/web/v1/game/endfield/attendance"
	headerGameRole   = "sk-game-role"
	requestedWithApp = "com.hypergryph.skland"
)

// DeviceIDSource returns the device id of the current run.
type DeviceIDSource interface {
	DeviceID(ctx context.Context) (string, error)
}

// Service calls the skland API on behalf of account tokens.
type Service struct {
	httpClient *http.Client
	grantURL   string
	baseURL    string
	deviceIDs  DeviceIDSource
	signer     *signer.Signer
}

// NewService creates a new Service. A nil httpClient uses http.DefaultClient.
func NewService(grantURL, baseURL string, deviceIDs DeviceIDSource, httpClient *http.Client) (*Service, error) {
	if _, err := url.Parse(grantURL); err != nil {
		return nil, fmt.Errorf("invalid grant URL: %w", err)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Service{
		httpClient: httpClient,
		grantURL:   grantURL,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		deviceIDs:  deviceIDs,
		signer:     &signer.Signer{},
	}, nil
}

// SignAll runs attendance for every token and returns one line per role.
// A failing token produces an error line instead of aborting the run.
func (s *Service) SignAll(ctx context.Context, tokens []string) ([]string, error) {
	logger := zerolog.Ctx(ctx)
	if _, err := s.deviceIDs.DeviceID(ctx); err != nil {
		return nil, fmt.Errorf("failed to get device id: %w", err)
	}
	var results []string
	for _, token := range tokens {
		lines, err := s.SignToken(ctx, token)
		if err != nil {
			logger.Error().Err(err).Msg("Token attendance failed.")
			results = append(results, fmt.Sprintf("Token attendance failed: %v", err))
			continue
		}
		results = append(results, lines...)
	}
	return results, nil
}

// SignToken exchanges token for a credential and runs attendance for all bound characters.
func (s *Service) SignToken(ctx context.Context, token string) ([]string, error) {
	code, err := s.Grant(ctx, token)
	if err != nil {
		return nil, err
	}
	cred, err := s.GenerateCred(ctx, code)
	if err != nil {
		return nil, err
	}
	characters, err := s.BindingList(ctx, cred)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Int("characters", len(characters)).Msg("Fetched binding list.")

	var results []string
	for _, character := range characters {
		switch character.AppCode {
		case gameArknights:
			line, err := s.AttendArknights(ctx, cred, character)
			if err != nil {
				return results, err
			}
			results = append(results, line)
		case gameEndfield:
			lines, err := s.AttendEndfield(ctx, cred, character)
			results = append(results, lines...)
			if err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// Grant exchanges an account token for an OAuth code.
func (s *Service) Grant(ctx context.Context, token string) (string, error) {
	body := map[string]any{"appCode": appCode, "token": token, "type": 0}
	resp, err := s.doUnsigned(ctx, s.grantURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to get grant: %w", err)
	}
	if resp.Status != 0 || resp.Code == codeUnparsable {
		return "", fmt.Errorf("failed to get grant: %s", resp.message())
	}
	var data grantData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return data.Code, nil
}

// GenerateCred exchanges an OAuth code for a session credential.
func (s *Service) GenerateCred(ctx context.Context, code string) (*Credential, error) {
	body := map[string]any{"code": code, "kind": 1}
	resp, err := s.doUnsigned(ctx, s.baseURL+pathCred, body)
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("failed to get credential: %s", resp.message())
	}
	var cred Credential
	if err := json.Unmarshal(resp.Data, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &cred, nil
}

// BindingList returns the arknights and endfield characters of the account.
func (s *Service) BindingList(ctx context.Context, cred *Credential) ([]Character, error) {
	resp, err := s.doSigned(ctx, cred, http.MethodGet, s.baseURL+pathBinding, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get binding list: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("failed to get binding list: %s", resp.message())
	}
	var data bindingData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal binding list: %w", err)
	}

	var characters []Character
	for _, item := range data.List {
		if item.AppCode != gameArknights && item.AppCode != gameEndfield {
			continue
		}
		gameName := item.AppName
		if gameName == "" {
			gameName = item.AppCode
		}
		for _, binding := range item.BindingList {
			binding.AppCode = item.AppCode
			binding.GameName = gameName
			if binding.GameID == 0 {
				binding.GameID = 3
				if item.AppCode == gameArknights {
					binding.GameID = 1
				}
			}
			characters = append(characters, binding)
		}
	}
	return characters, nil
}

// AttendArknights claims the daily arknights reward of character.
func (s *Service) AttendArknights(ctx context.Context, cred *Credential, character Character) (string, error) {
	label := fmt.Sprintf("[%s]%s(%s)", orUnknown(character.GameName), orUnknown(character.NickName), orUnknown(character.ChannelName))
	body, err := json.Marshal(struct {
		GameID int    `json:"gameId"`
		UID    string `json:"uid"`
	}{GameID: character.GameID, UID: character.UID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal attendance: %w", err)
	}
	resp, err := s.doSigned(ctx, cred, http.MethodPost, s.baseURL+pathArknights, body, nil)
	if err != nil {
		return "", fmt.Errorf("failed to attend %s: %w", label, err)
	}
	switch resp.Code {
	case 0:
	case codeAlreadyDone:
		return label + " already attended today", nil
	default:
		return fmt.Sprintf("%s attendance failed: %s", label, resp.message()), nil
	}

	var data arknightsAttendance
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return "", fmt.Errorf("failed to unmarshal attendance: %w", err)
	}
	awards := make([]string, 0, len(data.Awards))
	for _, award := range data.Awards {
		count := award.Count
		if count == 0 {
			count = 1
		}
		awards = append(awards, fmt.Sprintf("%s×%d", award.Resource.Name, count))
	}
	return fmt.Sprintf("%s attended, received: %s", label, strings.Join(awards, ", ")), nil
}

// AttendEndfield claims the daily endfield reward of every role of character.
func (s *Service) AttendEndfield(ctx context.Context, cred *Credential, character Character) ([]string, error) {
	var results []string
	for _, role := range character.Roles {
		nickname := role.Nickname
		if nickname == "" {
			nickname = character.NickName
		}
		label := fmt.Sprintf("[%s]%s(%s)", orUnknown(character.GameName), orUnknown(nickname), orUnknown(character.ChannelName))
		extra := http.Header{}
		extra.Set("Content-Type", "application/json")
		extra.Set(headerGameRole, fmt.Sprintf("3_%s_%s", role.RoleID, role.ServerID))
		extra.Set("Referer", endfieldRefer)
		extra.Set("Origin", endfieldRefer)

		resp, err := s.doSigned(ctx, cred, http.MethodPost, s.baseURL+pathEndfield, nil, extra)
		if err != nil {
			return results, fmt.Errorf("failed to attend %s: %w", label, err)
		}
		switch resp.Code {
		case 0:
		case codeAlreadyDone:
			results = append(results, label+" already attended today")
			continue
		default:
			results = append(results, fmt.Sprintf("%s attendance failed: %s", label, resp.message()))
			continue
		}

		var data endfieldAttendance
		if len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return results, fmt.Errorf("failed to unmarshal attendance: %w", err)
			}
		}
		var awards []string
		for _, award := range data.AwardIDs {
			if info, ok := data.ResourceInfoMap[award.ID]; ok {
				awards = append(awards, fmt.Sprintf("%s×%d", info.Name, info.Count))
			}
		}
		reward := strings.Join(awards, ", ")
		if reward == "" {
			reward = "attendance reward"
		}
		results = append(results, fmt.Sprintf("%s attended, received: %s", label, reward))
	}
	return results, nil
}

func (s *Service) doUnsigned(ctx context.Context, rawURL string, body any) (*envelope, error) {
	deviceID, err := s.deviceIDs.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	setCommonHeaders(req.Header)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("dId", deviceID)
	return s.do(req)
}

// doSigned signs the request path with the body, or with the raw query for GET requests.
func (s *Service) doSigned(ctx context.Context, cred *Credential, method, rawURL string, body []byte, extra http.Header) (*envelope, error) {
	deviceID, err := s.deviceIDs.DeviceID(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	signInput := string(body)
	if method == http.MethodGet {
		signInput = parsed.RawQuery
	}
	headers, err := s.signer.Sign(cred.Token, parsed.Path, signInput, deviceID)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	setCommonHeaders(req.Header)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("cred", cred.Cred)
	headers.Apply(req.Header)
	for k, v := range extra {
		req.Header[k] = v
	}
	return s.do(req)
}

// do sends req and decodes the envelope. Bodies that are not JSON become code -1 with the body
// text as message.
func (s *Service) do(req *http.Request) (*envelope, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || len(bodyBytes) == 0 {
			return &envelope{Code: codeUnparsable, Message: string(bodyBytes)}, nil
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &env, nil
}

func setCommonHeaders(h http.Header) {
	h.Set("User-Agent", UserAgent)
	h.Set("X-Requested-With", requestedWithApp)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
