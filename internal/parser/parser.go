// Package parser 负责从文档二进制内容中提取纯文本和元数据。
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"aifm-comply-go/internal/model"
	"aifm-comply-go/pkg/log"
)

// ParseError 表示已知类型的文档内容损坏或无法提取。
// 对单个文档是致命错误：索引管道会把文档置为 ERROR 并中止，不做部分索引。
type ParseError struct {
	MediaType string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("解析失败 (mediaType=%s): %v", e.MediaType, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parsed 是解析结果：纯文本加上提取到的元数据。
type Parsed struct {
	Text     string
	Metadata model.MetadataMap
}

// TextExtractor 抽象了依赖外部服务的文本提取（Tika）。
type TextExtractor interface {
	ExtractText(ctx context.Context, content []byte, contentType string) (string, error)
}

// 经由 Tika 提取的二进制媒体类型。
var tikaMediaTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

// Parser 按媒体类型分发到对应的提取方式。
type Parser struct {
	extractor TextExtractor
}

// New 创建一个新的 Parser 实例。
func New(extractor TextExtractor) *Parser {
	return &Parser{extractor: extractor}
}

// Parse 从二进制内容中提取文本与元数据。
// 未知媒体类型不报错，而是尽力按纯文本解码——可用性优先于精度，
// 让类型未知的文档也能被索引到一些内容。
func (p *Parser) Parse(ctx context.Context, content []byte, mediaType string) (*Parsed, error) {
	if _, ok := tikaMediaTypes[mediaType]; ok {
		return p.parseBinary(ctx, content, mediaType)
	}

	if mediaType == "text/plain" || strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/json" || mediaType == "text/csv" {
		return p.parseText(content), nil
	}

	// 未知类型：尽力按纯文本解码
	log.Warnf("[Parser] 未知媒体类型 '%s'，按纯文本尽力解码", mediaType)
	return p.parseText(content), nil
}

// parseBinary 通过 Tika 提取已知二进制类型的文本。
func (p *Parser) parseBinary(ctx context.Context, content []byte, mediaType string) (*Parsed, error) {
	if len(content) == 0 {
		return nil, &ParseError{MediaType: mediaType, Err: errors.New("文件内容为空")}
	}

	text, err := p.extractor.ExtractText(ctx, content, mediaType)
	if err != nil {
		return nil, &ParseError{MediaType: mediaType, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{MediaType: mediaType, Err: errors.New("提取的文本内容为空")}
	}

	return &Parsed{
		Text: text,
		Metadata: model.MetadataMap{
			"language":  DetectLanguage(text),
			"charCount": utf8.RuneCountInString(text),
		},
	}, nil
}

// parseText 本地解码文本内容，非法 UTF-8 字节被替换而不是报错。
func (p *Parser) parseText(content []byte) *Parsed {
	text := strings.ToValidUTF8(string(content), "�")
	return &Parsed{
		Text: text,
		Metadata: model.MetadataMap{
			"language":  DetectLanguage(text),
			"charCount": utf8.RuneCountInString(text),
		},
	}
}

var swedishWords = []string{"och", "är", "för", "att", "av", "som", "på", "med", "till"}
var englishWords = []string{"the", "and", "is", "for", "to", "in", "of", "that", "it"}

// DetectLanguage 做一个简单的 sv/en 停用词判定，文本太短时默认 sv。
func DetectLanguage(text string) string {
	if utf8.RuneCountInString(text) < 10 {
		return "sv"
	}

	lower := strings.ToLower(text)
	var svCount, enCount int
	for _, w := range swedishWords {
		if strings.Contains(lower, w) {
			svCount++
		}
	}
	for _, w := range englishWords {
		if strings.Contains(lower, w) {
			enCount++
		}
	}

	if enCount > svCount {
		return "en"
	}
	return "sv"
}
