package broadcast

import (
	"time"

	"github.com/foxseedlab/azkar-bot/internal/content"
	"github.com/foxseedlab/azkar-bot/internal/discord"
)

const (
	azkarColor = 0x2ECC71
	duaColor   = 0x3498DB

	azkarFooter = "بوت الأذكار والأدعية • جعله الله في ميزان حسناتكم"
	duaFooter   = "🤲 أدعية المؤمنين • بوت الأذكار والأدعية"
)

// RendererFor returns the embed layout used for kind.
func RendererFor(kind content.Kind) Renderer {
	if kind == content.KindDua {
		return RenderDua
	}
	return RenderAzkar
}

func RenderAzkar(item content.Item) discord.Embed {
	fields := []discord.EmbedField{
		{Name: "عدد المرات", Value: bold(item.Count), Inline: true},
		{Name: "التصنيف", Value: bold(item.Category), Inline: true},
	}
	if item.Description != "" {
		fields = append(fields, discord.EmbedField{Name: "السياق / الفضل", Value: item.Description})
	}
	return discord.Embed{
		Title:       "ذكر اليوم",
		Description: heading(item.Text),
		Color:       azkarColor,
		Fields:      fields,
		Footer:      azkarFooter,
		Timestamp:   time.Now(),
	}
}

func RenderDua(item content.Item) discord.Embed {
	return discord.Embed{
		Title:       "دعاء اليوم",
		Description: heading(item.Text),
		Color:       duaColor,
		Fields: []discord.EmbedField{
			{Name: "المصدر", Value: bold(item.Source), Inline: true},
			{Name: "التصنيف", Value: bold(item.Category), Inline: true},
			{Name: "السياق", Value: orDash(item.Context)},
		},
		Footer:    duaFooter,
		Timestamp: time.Now(),
	}
}

// heading renders text as a large markdown header.
func heading(s string) string {
	return "# " + s
}

func bold(s string) string {
	if s == "" {
		return orDash(s)
	}
	return "**" + s + "**"
}

// Discord rejects embed fields with empty values.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
