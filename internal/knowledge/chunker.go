package knowledge

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/aihub/policyqa-go/internal/errors"
)

// Chunker 文本分块器，按语义边界切分并保留重叠
type Chunker struct {
	chunkSize    int // 单块目标token数
	chunkOverlap int // 相邻块重叠token数
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// textUnit 切分的最小单元（段落/句子/词组），偏移基于原文
type textUnit struct {
	start  int
	end    int
	tokens int
}

// Chunk 将文档切分为带溯源元数据的有序分块
func (c *Chunker) Chunk(doc Document) ([]Chunk, error) {
	text := NormalizeText(doc.RawText)
	if text == "" {
		return nil, apperrors.NewChunkingError("document text is empty after normalization").
			WithDocument(doc.DocumentID)
	}

	units := c.buildUnits(text)
	if len(units) == 0 {
		return nil, apperrors.NewChunkingError("document produced no usable text segments").
			WithDocument(doc.DocumentID)
	}

	var chunks []Chunk
	i := 0
	for i < len(units) {
		// 按token预算向后累积单元
		j := i
		tok := 0
		for j < len(units) {
			t := units[j].tokens
			if j > i && tok+t > c.chunkSize {
				break
			}
			tok += t
			j++
		}

		start := units[i].start
		end := units[j-1].end
		chunkText := strings.TrimSpace(text[start:end])
		if chunkText != "" {
			seq := len(chunks)
			chunks = append(chunks, Chunk{
				ChunkID:       fmt.Sprintf("%s_%d", doc.DocumentID, seq),
				DocumentID:    doc.DocumentID,
				Filename:      doc.Filename,
				DocumentType:  doc.DocumentType,
				Text:          chunkText,
				TokenCount:    estimateTokens(chunkText),
				CharCount:     len([]rune(chunkText)),
				PageNumber:    pageForOffset(doc.PageMap, start),
				SequenceIndex: seq,
			})
		}

		if j >= len(units) {
			break
		}

		if c.chunkOverlap > 0 {
			// 回退累积重叠token，保证下一块至少前进一个单元
			k := j
			otok := 0
			for k > i+1 {
				t := units[k-1].tokens
				if otok+t > c.chunkOverlap {
					break
				}
				otok += t
				k--
			}
			i = k
		} else {
			i = j
		}
	}

	if len(chunks) == 0 {
		return nil, apperrors.NewChunkingError("document produced no chunks").
			WithDocument(doc.DocumentID)
	}
	return chunks, nil
}

// buildUnits 按 段落→句子→词组 的顺序切分，超长时逐级降级
func (c *Chunker) buildUnits(text string) []textUnit {
	var units []textUnit
	for _, p := range paragraphSpans(text) {
		if p.tokens <= c.chunkSize {
			units = append(units, p)
			continue
		}
		for _, s := range sentenceSpans(text, p.start, p.end) {
			if s.tokens <= c.chunkSize {
				units = append(units, s)
				continue
			}
			units = append(units, wordSpans(text, s.start, s.end, c.chunkSize)...)
		}
	}
	return units
}

// paragraphSpans 按空行切分段落
func paragraphSpans(text string) []textUnit {
	var spans []textUnit
	start := 0
	for start < len(text) {
		idx := strings.Index(text[start:], "\n\n")
		end := len(text)
		nextStart := len(text)
		if idx >= 0 {
			end = start + idx
			nextStart = end + 2
		}
		if u, ok := makeUnit(text, start, end); ok {
			spans = append(spans, u)
		}
		start = nextStart
	}
	return spans
}

// sentenceSpans 在[start,end)内按句子边界切分
func sentenceSpans(text string, start, end int) []textUnit {
	var spans []textUnit
	segStart := start
	for i := start; i < end; i++ {
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			// 句末标点后跟空白才算边界，避免切断编号和小数
			if i+1 >= end || text[i+1] == ' ' || text[i+1] == '\n' {
				if u, ok := makeUnit(text, segStart, i+1); ok {
					spans = append(spans, u)
				}
				segStart = i + 1
			}
		}
	}
	if segStart < end {
		if u, ok := makeUnit(text, segStart, end); ok {
			spans = append(spans, u)
		}
	}
	return spans
}

// wordSpans 按空白把超长句子切成不超过预算的词组，必要时硬切
func wordSpans(text string, start, end, budget int) []textUnit {
	// 硬切上限：按平均词长放宽到预算的8倍字符
	charCap := budget * 8

	type span struct{ s, e int }
	var words []span
	i := start
	for i < end {
		for i < end && isSpaceByte(text[i]) {
			i++
		}
		if i >= end {
			break
		}
		ws := i
		for i < end && !isSpaceByte(text[i]) {
			i++
		}
		words = append(words, span{s: ws, e: i})
	}

	var spans []textUnit
	gi := 0
	for gi < len(words) {
		gj := gi + 1
		for gj < len(words) && gj-gi < budget && words[gj].e-words[gi].s <= charCap {
			gj++
		}
		gs, ge := words[gi].s, words[gj-1].e
		if ge-gs > charCap {
			// 单个超长词：按字符硬切（保持rune边界）
			spans = append(spans, hardCut(text, gs, ge, charCap)...)
		} else if u, ok := makeUnit(text, gs, ge); ok {
			spans = append(spans, u)
		}
		gi = gj
	}
	return spans
}

// hardCut 把[start,end)按charCap硬切，避免切开多字节字符
func hardCut(text string, start, end, charCap int) []textUnit {
	var spans []textUnit
	for start < end {
		cut := start + charCap
		if cut >= end {
			cut = end
		} else {
			// 回退到rune起始字节
			for cut > start && text[cut]&0xC0 == 0x80 {
				cut--
			}
			if cut == start {
				cut = start + charCap
			}
		}
		spans = append(spans, textUnit{start: start, end: cut, tokens: 1})
		start = cut
	}
	return spans
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

// makeUnit 构造单元，纯空白返回false
func makeUnit(text string, start, end int) (textUnit, bool) {
	seg := text[start:end]
	tokens := estimateTokens(seg)
	if tokens == 0 {
		return textUnit{}, false
	}
	return textUnit{start: start, end: end, tokens: tokens}, true
}

// pageForOffset 通过页起始偏移表定位页码（1起）
// 跨页的分块归属到首字符所在页
func pageForOffset(pageMap []int, offset int) int {
	if len(pageMap) == 0 {
		return 1
	}
	// 第一个起始偏移大于offset的页的前一页
	idx := sort.Search(len(pageMap), func(i int) bool {
		return pageMap[i] > offset
	})
	if idx == 0 {
		return 1
	}
	return idx
}

// estimateTokens 近似token数（按空白分词）
func estimateTokens(s string) int {
	return len(strings.Fields(s))
}

// NormalizeText 规范化文本：统一换行、压缩空白、保留段落边界
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var builder strings.Builder
	builder.Grow(len(s))

	spaceRun := 0
	newlineRun := 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlineRun++
			spaceRun = 0
		case r == ' ' || r == '\t':
			if newlineRun > 0 {
				// 行首空白丢弃
				continue
			}
			spaceRun++
		default:
			if newlineRun > 0 {
				if builder.Len() > 0 {
					if newlineRun >= 2 {
						builder.WriteString("\n\n")
					} else {
						builder.WriteByte('\n')
					}
				}
				newlineRun = 0
			} else if spaceRun > 0 {
				if builder.Len() > 0 {
					builder.WriteByte(' ')
				}
			}
			spaceRun = 0
			builder.WriteRune(r)
		}
	}

	return strings.TrimSpace(builder.String())
}
