package service

import (
	"regexp"
	"strings"
)

// SimilarityComparator 各领域两两相似度函数的统一契约。
// 返回值在 [0,1]，实现必须是纯函数且满足交换律：Compare(a,b) == Compare(b,a)。
// 放大到 [0,100] 和阈值过滤由比较引擎负责，实现方不做。
type SimilarityComparator interface {
	Compare(elementsA, elementsB []string) float64
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// TokenizeText 把文本正文规整为小写词元序列，作为文本提交的比较元素
func TokenizeText(content string) []string {
	fields := nonWord.Split(strings.ToLower(content), -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// TokenizeModelElements 模型类提交的元素列表按行给出，每行一个元素标识
func TokenizeModelElements(content string) []string {
	lines := strings.Split(content, "\n")
	elements := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l != "" {
			elements = append(elements, l)
		}
	}
	return elements
}

// TextComparator 词元集合的 Jaccard 相似度
type TextComparator struct{}

func NewTextComparator() *TextComparator {
	return &TextComparator{}
}

func (c *TextComparator) Compare(elementsA, elementsB []string) float64 {
	if len(elementsA) == 0 || len(elementsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(elementsA))
	for _, e := range elementsA {
		setA[e] = true
	}
	setB := make(map[string]bool, len(elementsB))
	for _, e := range elementsB {
		setB[e] = true
	}

	intersection := 0
	for e := range setA {
		if setB[e] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ModelingComparator 模型元素集合的 Dice 系数。
// 元素是不透明的可比较单元（UML 元素指纹等），不做进一步解析。
type ModelingComparator struct{}

func NewModelingComparator() *ModelingComparator {
	return &ModelingComparator{}
}

func (c *ModelingComparator) Compare(elementsA, elementsB []string) float64 {
	if len(elementsA) == 0 || len(elementsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(elementsA))
	for _, e := range elementsA {
		setA[e] = true
	}
	setB := make(map[string]bool, len(elementsB))
	for _, e := range elementsB {
		setB[e] = true
	}

	intersection := 0
	for e := range setA {
		if setB[e] {
			intersection++
		}
	}
	return 2 * float64(intersection) / float64(len(setA)+len(setB))
}
