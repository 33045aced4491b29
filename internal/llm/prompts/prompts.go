// Package prompts builds the instruction prompts sent to the generative model.
package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSourceRunes caps how much extracted PDF text goes into one extraction
// prompt. Evaluation plans are short documents; anything past this is almost
// certainly appendix noise.
const maxSourceRunes = 60000

// CommentEntry is one selected standard with its per-standard settings,
// rendered as a section of the synthesis prompt.
type CommentEntry struct {
	Index            int
	StandardText     string
	AchievementLevel string
	Attitude         string
	GenerationFocus  string
	AdditionalInfo   string
}

// BuildExtractionPrompt builds the structured-extraction prompt embedding the
// raw PDF text. The model is instructed to answer with a single JSON object
// matching the schema in internal/llm.
func BuildExtractionPrompt(rawText string) string {
	var sb strings.Builder
	sb.WriteString("당신은 교육 평가 계획서에서 데이터를 추출하는 AI입니다.\n")
	sb.WriteString("주어진 텍스트에서 과목(subject)과 각 과목에 해당하는 성취기준(achievement standard) 목록을 추출해주세요.\n\n")
	sb.WriteString("**요구사항:**\n")
	sb.WriteString("1. 텍스트를 분석하여 모든 과목명을 찾아 목록으로 만듭니다.\n")
	sb.WriteString("2. 각 과목별로 연관된 성취기준들을 모두 찾습니다.\n")
	sb.WriteString("3. 각 성취기준에 대해, \"[...]\" 형식의 고유 ID(예: [2슬01-01])가 있으면 그것을 'id'로 사용합니다. ")
	sb.WriteString("만약 없다면, 과목명 약어와 숫자를 조합하여 고유한 ID를 생성합니다. (예: 국어 -> kor-1)\n")
	sb.WriteString("4. 결과는 반드시 아래 형식의 JSON 객체 하나로만 출력해야 합니다. 다른 텍스트는 포함하지 마세요.\n\n")
	sb.WriteString("**출력 형식:**\n")
	sb.WriteString(`{"subjects": [{"subject": "<과목명>", "standards": [{"id": "<고유 식별자>", "text": "<성취기준의 전체 내용>"}]}]}`)
	sb.WriteString("\n\n**추출할 텍스트:**\n---\n")
	sb.WriteString(sanitizeSourceText(rawText))
	sb.WriteString("\n---\n")
	return sb.String()
}

// BuildCommentPrompt builds the comment-synthesis prompt for one student.
// Every entry must be addressed individually; the resulting sentences are
// merged into a single paragraph.
func BuildCommentPrompt(subject string, entries []CommentEntry) string {
	var sb strings.Builder
	sb.WriteString("당신은 한국 초등학교 교사를 돕는 전문 AI 어시스턴트입니다.\n")
	sb.WriteString("주어진 정보를 바탕으로 학생의 교과별 평어 문장을 생성하는 임무를 맡았습니다.\n")
	sb.WriteString("평어는 학교 생활기록부에 기재하기에 적합하도록, 정중하고 서술적이며 긍정적인 어조로 작성해야 합니다.\n\n")
	sb.WriteString("**지시사항:**\n")
	sb.WriteString("1. 제공된 각각의 '성취기준'에 대해, 해당 기준에 지정된 '성취 수준', '태도', '생성 중심', '추가 정보'를 **개별적으로** 반영하여 한 문장씩 설명하는 글을 생성합니다. 어떤 성취기준도 합치거나 빠뜨리지 마세요.\n")
	sb.WriteString("2. 각 성취기준별 '생성 중심' 값에 따라 내용의 비중을 조절해야 합니다. '성취 수준 중심'은 성취도 관련 내용을, '태도 중심'은 태도 관련 내용을 더 강조하고, '성취 수준 & 태도 같은 비율'은 둘을 균형 있게 다루어야 합니다.\n")
	sb.WriteString("3. '추가 정보'가 있는 경우, 관련된 문장에 자연스럽게 내용을 포함시키세요.\n")
	sb.WriteString("4. 각 문장은 간결하고 명료하게 작성합니다.\n")
	sb.WriteString("5. 각 문장의 끝은 '~함', '~임', '~할 수 있음', 또는 '~보임' 중 하나를 사용하여 자연스럽게 끝맺습니다.\n")
	sb.WriteString("6. 모든 문장을 하나의 문단으로 합칩니다. 각 문장은 띄어쓰기 한 칸으로 구분하고, 줄바꿈은 절대 사용하지 마세요.\n")
	sb.WriteString("7. 아래 '결과 예시'의 문체와 형식을 반드시 준수해야 합니다.\n")
	sb.WriteString("8. 매번 약간씩 다른 표현을 사용하여 문장을 생성하여, 여러 학생에게 동일한 내용이 반복되지 않도록 합니다.\n\n")
	sb.WriteString("**결과 예시:**\n")
	sb.WriteString("- 생활 주변에서 삼각형, 사각형, 원 모양을 다양하게 찾음. 일의 자리에서 받아올림이 있는 두 자리 수의 덧셈 계산 방법을 익혀 문제를 바르게 해결함.\n")
	sb.WriteString("- 삼각형의 개념을 이해하고 특징을 바르게 설명할 수 있음. 객관적인 분류 기준을 정하여 여러 동물들을 바르게 분류하는 태도가 돋보임.\n")
	sb.WriteString("- 말차례가 무엇인지 알고 말차례를 지키는 방법을 스스로 탐구함. 글을 읽고 인물이 처한 상황을 파악하고, 인물의 말이나 행동을 통해 인물의 마음을 짐작함.\n\n")
	sb.WriteString("**학생 정보:**\n")
	sb.WriteString("- 과목: " + subject + "\n\n")
	sb.WriteString("**작성할 성취기준 및 개별 평가:**\n")
	for _, e := range entries {
		info := e.AdditionalInfo
		if info == "" {
			info = "없음"
		}
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "성취기준 %d: %q\n", e.Index, e.StandardText)
		sb.WriteString("- 성취 수준: " + e.AchievementLevel + "\n")
		sb.WriteString("- 태도: " + e.Attitude + "\n")
		sb.WriteString("- 생성 중심: " + e.GenerationFocus + "\n")
		sb.WriteString("- 추가 정보: " + info + "\n")
		sb.WriteString("---\n")
	}
	sb.WriteString("\n**생성된 평어:**\n")
	return sb.String()
}

func sanitizeSourceText(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxSourceRunes {
		runes := []rune(text)
		text = string(runes[:maxSourceRunes]) + "\n\n[이후 내용 생략]"
	}
	return text
}
