package orchestrator

import (
	"fmt"

	"github.com/hurttlocker/langextract/internal/analysis"
)

var chatPersona = map[string][2]string{
	analysis.DomainGeneral: {"دستیار تحلیل متن", "a text-analysis assistant"},
	analysis.DomainLegal:   {"دستیار تحلیل حقوقی", "a legal-analysis assistant"},
	analysis.DomainMedical: {"دستیار تحلیل پزشکی", "a medical-analysis assistant"},
	analysis.DomainPolice:  {"دستیار تحلیل امنیتی و پلیسی", "a police and security analysis assistant"},
}

// ChatSystemPrompt frames the conversational model for a language and domain.
func ChatSystemPrompt(language, domain string) string {
	persona := chatPersona[analysis.NormalizeDomain(domain)]
	if analysis.IsPersian(language) {
		return fmt.Sprintf("شما یک %s هستید. به زبان فارسی، دقیق و مختصر پاسخ دهید. "+
			"از اطلاعاتی که کاربر پیش‌تر در گفتگو داده (مانند نام و نقش او) استفاده کنید و چیزی را از خود نسازید.", persona[0])
	}
	return fmt.Sprintf("You are %s. Answer in the user's language, precisely and briefly. "+
		"Use what the user has already told you in this conversation (such as their name and role) and do not invent facts.", persona[1])
}
