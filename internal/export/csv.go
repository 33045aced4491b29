// Package export renders confirmed comments as a spreadsheet-ready CSV.
package export

import (
	"strconv"
	"strings"

	"github.com/yunseol/pyeongeo/internal/model"
)

// FileName is the download name offered to the browser.
const FileName = "교과별_평어.csv"

// ContentType includes the charset so browsers decode Hangul correctly.
const ContentType = "text/csv; charset=utf-8"

var header = []string{"학생 번호", "과목", "생성된 평어"}

// CSV renders the given students as UTF-8 CSV with a BOM prefix. Excel on
// Windows mis-decodes BOM-less UTF-8, so the BOM is not optional. String
// fields are always quoted regardless of content; the numeric student id and
// the header row are not.
func CSV(students []model.StudentData) string {
	var b strings.Builder
	b.WriteString("\uFEFF")
	b.WriteString(strings.Join(header, ","))
	for _, st := range students {
		b.WriteString("\n")
		b.WriteString(strconv.Itoa(st.ID))
		b.WriteString(",")
		b.WriteString(quote(st.Subject))
		b.WriteString(",")
		b.WriteString(quote(st.Comment))
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
