package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Notion 文本块单个 rich_text 的上限
const maxRichTextLength = 2000

// 数据库约定的属性名
const (
	PropertyDate   = "Date"
	PropertySlot   = "Slot"
	PropertyTitle  = "Name"
	PropertyStatus = "Status"
)

type Client struct {
	hc      *client.Client
	baseURL string
	version string
	timeout time.Duration
}

type Config struct {
	BaseURL string
	Version string
	Timeout time.Duration
}

type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func NewClient(cfg Config) (*Client, error) {
	hc, err := client.NewClient(client.WithDialTimeout(5 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		hc:      hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		version: cfg.Version,
		timeout: timeout,
	}, nil
}

// Page 只保留需要的字段
type Page struct {
	ID         string              `json:"id"`
	Properties map[string]Property `json:"properties"`
}

type Property struct {
	Type   string     `json:"type"`
	Title  []RichText `json:"title,omitempty"`
	Select *Option    `json:"select,omitempty"`
	Status *Option    `json:"status,omitempty"`
}

type Option struct {
	Name string `json:"name"`
}

type RichText struct {
	Type      string    `json:"type,omitempty"`
	PlainText string    `json:"plain_text,omitempty"`
	Text      *TextBody `json:"text,omitempty"`
}

type TextBody struct {
	Content string `json:"content"`
}

type Block struct {
	ID               string     `json:"id,omitempty"`
	Object           string     `json:"object,omitempty"`
	Type             string     `json:"type"`
	Paragraph        *BlockText `json:"paragraph,omitempty"`
	BulletedListItem *BlockText `json:"bulleted_list_item,omitempty"`
	NumberedListItem *BlockText `json:"numbered_list_item,omitempty"`
	ToDo             *BlockText `json:"to_do,omitempty"`
	Quote            *BlockText `json:"quote,omitempty"`
	Heading1         *BlockText `json:"heading_1,omitempty"`
	Heading2         *BlockText `json:"heading_2,omitempty"`
	Heading3         *BlockText `json:"heading_3,omitempty"`
}

type BlockText struct {
	RichText []RichText `json:"rich_text"`
}

// Text 拼接 rich_text 的纯文本
func (b Block) Text() string {
	var body *BlockText
	switch b.Type {
	case "paragraph":
		body = b.Paragraph
	case "bulleted_list_item":
		body = b.BulletedListItem
	case "numbered_list_item":
		body = b.NumberedListItem
	case "to_do":
		body = b.ToDo
	case "quote":
		body = b.Quote
	case "heading_1":
		body = b.Heading1
	case "heading_2":
		body = b.Heading2
	case "heading_3":
		body = b.Heading3
	}
	if body == nil {
		return ""
	}
	return joinRichText(body.RichText)
}

// IsListItem 列表块视为一个 prompt
func (b Block) IsListItem() bool {
	return b.Type == "bulleted_list_item" || b.Type == "numbered_list_item" || b.Type == "to_do"
}

// Title 返回标题属性的纯文本
func (p Page) Title() string {
	prop, ok := p.Properties[PropertyTitle]
	if !ok {
		return ""
	}
	return joinRichText(prop.Title)
}

func joinRichText(parts []RichText) string {
	var sb strings.Builder
	for _, rt := range parts {
		if rt.PlainText != "" {
			sb.WriteString(rt.PlainText)
		} else if rt.Text != nil {
			sb.WriteString(rt.Text.Content)
		}
	}
	return sb.String()
}

type queryResponse struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

// QueryByDateAndSlot 按日期和时间槽筛选数据库页面
func (c *Client) QueryByDateAndSlot(ctx context.Context, token, databaseID, date, slot string) ([]Page, error) {
	payload := map[string]interface{}{
		"filter": map[string]interface{}{
			"and": []map[string]interface{}{
				{"property": PropertyDate, "date": map[string]string{"equals": date}},
				{"property": PropertySlot, "select": map[string]string{"equals": slot}},
			},
		},
		"page_size": 10,
	}

	var out queryResponse
	if err := c.do(ctx, consts.MethodPost, "/v1/databases/"+databaseID+"/query", token, payload, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

type childrenResponse struct {
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor string  `json:"next_cursor"`
}

// Children 读取页面下所有子块，按 cursor 翻页
func (c *Client) Children(ctx context.Context, token, blockID string) ([]Block, error) {
	var (
		blocks []Block
		cursor string
	)
	for {
		path := "/v1/blocks/" + blockID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}

		var out childrenResponse
		if err := c.do(ctx, consts.MethodGet, path, token, nil, &out); err != nil {
			return nil, err
		}
		blocks = append(blocks, out.Results...)

		if !out.HasMore || out.NextCursor == "" {
			return blocks, nil
		}
		cursor = out.NextCursor
	}
}

// AppendParagraph 在页面末尾追加段落，超长文本按上限拆成多个 rich_text
func (c *Client) AppendParagraph(ctx context.Context, token, blockID, text string) error {
	var rich []RichText
	runes := []rune(text)
	for len(runes) > 0 {
		n := len(runes)
		if n > maxRichTextLength {
			n = maxRichTextLength
		}
		rich = append(rich, RichText{Type: "text", Text: &TextBody{Content: string(runes[:n])}})
		runes = runes[n:]
	}
	if len(rich) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"children": []Block{{
			Object:    "block",
			Type:      "paragraph",
			Paragraph: &BlockText{RichText: rich},
		}},
	}
	return c.do(ctx, consts.MethodPatch, "/v1/blocks/"+blockID+"/children", token, payload, nil)
}

// SetStatus 更新页面的 Status 选择属性
func (c *Client) SetStatus(ctx context.Context, token, pageID, status string) error {
	payload := map[string]interface{}{
		"properties": map[string]interface{}{
			PropertyStatus: map[string]interface{}{
				"select": map[string]string{"name": status},
			},
		},
	}
	return c.do(ctx, consts.MethodPatch, "/v1/pages/"+pageID, token, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, payload, out interface{}) error {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", c.version)

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("notion %s %s: marshal: %w", method, path, err)
		}
		req.Header.SetContentTypeBytes([]byte("application/json"))
		req.SetBody(body)
	}

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return fmt.Errorf("notion %s %s: %w", method, path, err)
	}

	if resp.StatusCode() >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), apiErr)
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("notion %s %s: decode: %w", method, path, err)
	}
	return nil
}
