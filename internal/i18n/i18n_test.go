package i18n

import (
	"testing"

	"golang.org/x/text/language"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		input string
		want  language.Tag
	}{
		{"", language.Japanese},
		{"ja", language.Japanese},
		{"ja-JP", language.Japanese},
		{"en", language.English},
		{"en-US", language.English},
		{"not a tag!", language.Japanese},
	}
	for _, tt := range tests {
		got := ParseTag(tt.input)
		base, _ := got.Base()
		wantBase, _ := tt.want.Base()
		if base != wantBase {
			t.Errorf("ParseTag(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPrinterJapanese(t *testing.T) {
	p := Printer(language.Japanese)
	if got := p.Sprintf(GroupHeader, 3, 2); got != "(3件 / 2ユーザー)" {
		t.Fatalf("unexpected header %q", got)
	}
	if got := p.Sprintf(Retrying, 1, 3); got != "接続エラーが発生しました(1/3)。再試行中..." {
		t.Fatalf("unexpected retry message %q", got)
	}
}

func TestPrinterEnglish(t *testing.T) {
	p := Printer(language.English)
	if got := p.Sprintf(GroupHeader, 3, 2); got != "(3 items / 2 users)" {
		t.Fatalf("unexpected header %q", got)
	}
}
