package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hurttlocker/langextract/internal/analysis"
)

// Example is a few-shot demonstration rendered into the user prompt.
type Example struct {
	Text          string                  `json:"text"`
	Entities      []analysis.Entity       `json:"entities"`
	Relationships []analysis.Relationship `json:"relationships"`
}

// FewShotFA is the default Persian demonstration.
var FewShotFA = []Example{
	{
		Text: "علی در تهران زندگی می‌کند و در شرکت دیجی‌کالا کار می‌کند.",
		Entities: []analysis.Entity{
			{Name: "علی", Type: "PERSON"},
			{Name: "تهران", Type: "LOCATION"},
			{Name: "دیجی‌کالا", Type: "ORGANIZATION"},
		},
		Relationships: []analysis.Relationship{
			{SourceEntityID: "PERSON:علی", TargetEntityID: "ORGANIZATION:دیجی‌کالا", Type: "EMPLOYED_AT"},
			{SourceEntityID: "PERSON:علی", TargetEntityID: "LOCATION:تهران", Type: "LIVES_IN"},
		},
	},
}

// FewShotPoliceFA demonstrates inference for the police domain in Persian.
var FewShotPoliceFA = []Example{
	{
		Text: "شخصی با نام احمد رضایی وارد مغازه شد، کالایی برداشت و بدون پرداخت خارج شد.",
		Entities: []analysis.Entity{
			{Name: "احمد رضایی", Type: "SUSPECT"},
			{Name: "مغازه", Type: "LOCATION"},
			{Name: "کالا برداشتن بدون پرداخت", Type: "SUSPICIOUS_BEHAVIOR"},
			{Name: "احتمال سرقت", Type: "CRIMINAL_INFERENCE"},
		},
		Relationships: []analysis.Relationship{
			{SourceEntityID: "SUSPECT:احمد رضایی", TargetEntityID: "LOCATION:مغازه", Type: "ENTERED"},
			{SourceEntityID: "SUSPECT:احمد رضایی", TargetEntityID: "SUSPICIOUS_BEHAVIOR:کالا برداشتن بدون پرداخت", Type: "PERFORMED"},
			{SourceEntityID: "SUSPICIOUS_BEHAVIOR:کالا برداشتن بدون پرداخت", TargetEntityID: "CRIMINAL_INFERENCE:احتمال سرقت", Type: "INDICATES"},
		},
	},
}

// FewShotEN is the default English demonstration.
var FewShotEN = []Example{
	{
		Text: "Sara moved to Berlin in 2019 and works at Google.",
		Entities: []analysis.Entity{
			{Name: "Sara", Type: "PERSON"},
			{Name: "Berlin", Type: "LOCATION"},
			{Name: "2019", Type: "DATE"},
			{Name: "Google", Type: "ORGANIZATION"},
		},
		Relationships: []analysis.Relationship{
			{SourceEntityID: "PERSON:Sara", TargetEntityID: "LOCATION:Berlin", Type: "MOVED_TO"},
			{SourceEntityID: "PERSON:Sara", TargetEntityID: "ORGANIZATION:Google", Type: "EMPLOYED_AT"},
		},
	},
}

type localized struct {
	fa, en string
}

func (l localized) pick(language string) string {
	if analysis.IsPersian(language) {
		return l.fa
	}
	return l.en
}

var domainInstructions = map[string]localized{
	analysis.DomainGeneral: {
		fa: "شما یک موتور استخراج اطلاعات دقیق هستید. متن‌های عمومی را تحلیل کنید و موجودیت‌ها، روابط و استنتاج‌های منطقی را شناسایی کنید. احتمالات و ریسک‌ها را ارزیابی کنید.",
		en: "You are a precise information extraction engine for general texts. Identify important entities, relationships, and logical inferences. Assess probabilities and risks.",
	},
	analysis.DomainLegal: {
		fa: "شما یک متخصص حقوقی هستید که متن‌های قانونی را تحلیل می‌کنید. بر اشخاص، نهادهای حقوقی، قوانین، مواد قانونی، دادگاه‌ها، قراردادها و روابط حقوقی تمرکز کنید. احتمال نقض قوانین و خطرات حقوقی را ارزیابی کنید.",
		en: "You are a legal expert analyzing legal texts. Focus on persons, legal entities, laws, legal articles, courts, contracts, and legal relationships. Assess probability of law violations and legal risks.",
	},
	analysis.DomainMedical: {
		fa: "شما یک متخصص پزشکی هستید که اسناد پزشکی را تحلیل می‌کنید. بر بیماران، پزشکان، بیماری‌ها، علائم، درمان‌ها، داروها، آزمایش‌ها و روابط پزشکی تمرکز کنید. خطرات سلامتی و احتمالات تشخیصی را ارزیابی کنید.",
		en: "You are a medical expert analyzing medical documents. Focus on patients, doctors, diseases, symptoms, treatments, medications, tests, and medical relationships. Assess health risks and diagnostic probabilities.",
	},
	analysis.DomainPolice: {
		fa: "شما یک تحلیلگر امنیتی هستید که اسناد پلیسی و امنیتی را بررسی می‌کنید. بر مظنونان، مجرمان، جرائم، شاهدان، مکان‌های وقوع، زمان، شواهد و روابط جرمی تمرکز کنید. رفتارهای مشکوک، انگیزه‌های احتمالی، و سطح تهدید را تحلیل و استنتاج کنید. احتمال وقوع جرم را ارزیابی کنید.",
		en: "You are a security analyst reviewing police and security documents. Focus on suspects, criminals, crimes, witnesses, locations, times, evidence, and criminal relationships. Analyze and infer suspicious behaviors, potential motives, and threat levels. Assess crime probability.",
	},
}

var inferenceInstructions = map[string]localized{
	analysis.DomainGeneral: {
		fa: "علاوه بر موجودیت‌ها و روابط مستقیم، استنتاج‌های منطقی و احتمالات را نیز شناسایی کنید.",
		en: "In addition to direct entities and relationships, identify logical inferences and probabilities.",
	},
	analysis.DomainPolice: {
		fa: "ویژه: رفتارهای مشکوک، احتمال وقوع جرم، انگیزه‌های احتمالی و سطح تهدید را تحلیل و استنتاج کنید. اگر متن حاکی از احتمال جرم است، آن را به عنوان CRIMINAL_INFERENCE یا SUSPICIOUS_BEHAVIOR شناسایی کنید.",
		en: "Special: Analyze and infer suspicious behaviors, crime probability, potential motives, and threat levels. If the text suggests possible crime, identify it as CRIMINAL_INFERENCE or SUSPICIOUS_BEHAVIOR.",
	},
	analysis.DomainLegal: {
		fa: "ویژه: احتمال نقض قوانین، خطرات حقوقی و استنتاج‌های قانونی را شناسایی کنید.",
		en: "Special: Identify probability of law violations, legal risks, and legal inferences.",
	},
	analysis.DomainMedical: {
		fa: "ویژه: خطرات سلامتی، احتمالات تشخیصی و استنتاج‌های پزشکی را شناسایی کنید.",
		en: "Special: Identify health risks, diagnostic probabilities, and medical inferences.",
	},
}

var refereeContexts = map[string]localized{
	analysis.DomainGeneral: {fa: "تحلیل عمومی متن", en: "general text analysis"},
	analysis.DomainLegal:   {fa: "تحلیل متن حقوقی", en: "legal text analysis"},
	analysis.DomainMedical: {fa: "تحلیل متن پزشکی", en: "medical text analysis"},
	analysis.DomainPolice:  {fa: "تحلیل متن امنیتی/پلیسی", en: "police/security text analysis"},
}

var refereeNotesFA = map[string]string{
	analysis.DomainPolice:  "توجه ویژه: رفتارهای مشکوک، احتمالات جرمی، انگیزه‌ها و استنتاج‌های امنیتی را در نظر بگیرید.",
	analysis.DomainLegal:   "توجه ویژه: احتمال نقض قوانین و خطرات حقوقی را ارزیابی کنید.",
	analysis.DomainMedical: "توجه ویژه: خطرات سلامتی و احتمالات تشخیصی را در نظر بگیرید.",
}

// EntityTypes lists the entity types the prompt asks for, per domain.
var EntityTypes = map[string][]string{
	analysis.DomainGeneral: {"PERSON", "ORGANIZATION", "LOCATION", "DATE", "TIME", "EVENT", "PRODUCT", "MONEY", "INFERENCE", "RISK_ASSESSMENT"},
	analysis.DomainLegal:   {"PERSON", "LEGAL_ENTITY", "COURT", "LAW", "LEGAL_ARTICLE", "CONTRACT", "CASE_NUMBER", "DATE", "LOCATION", "FINE", "SENTENCE", "LEGAL_INFERENCE", "VIOLATION_RISK"},
	analysis.DomainMedical: {"PATIENT", "DOCTOR", "HOSPITAL", "DISEASE", "SYMPTOM", "TREATMENT", "MEDICATION", "TEST", "BODY_PART", "DATE", "DOSAGE", "MEDICAL_INFERENCE", "HEALTH_RISK"},
	analysis.DomainPolice:  {"SUSPECT", "VICTIM", "WITNESS", "CRIME", "LOCATION", "DATE", "TIME", "EVIDENCE", "WEAPON", "VEHICLE", "CASE_NUMBER", "OFFICER", "CRIMINAL_INFERENCE", "THREAT_LEVEL", "MOTIVE", "SUSPICIOUS_BEHAVIOR"},
}

var schemaInstructions = map[string]string{
	analysis.DefaultSchema: "Schema: {\n" +
		"  \"entities\": [ { \"name\": string, \"type\": string, \"start_index\"?: int, \"end_index\"?: int, \"attributes\"?: object } ],\n" +
		"  \"relationships\": [ { \"source_entity_id\": string, \"target_entity_id\": string, \"type\": string, \"attributes\"?: object } ],\n" +
		"  \"confidence_score\"?: number,\n" +
		"  \"reasoning\"?: string\n" +
		"}\n",
}

// SystemPrompt builds the system prompt for an extraction in the given
// language, schema and domain.
func SystemPrompt(language, schema, domain string) string {
	domain = analysis.NormalizeDomain(domain)
	schemaText, ok := schemaInstructions[schema]
	if !ok {
		schemaText = schemaInstructions[analysis.DefaultSchema]
	}
	return fmt.Sprintf("%s\nFocus on these entity types: %s\n"+
		"Output only minified JSON that conforms to the schema. "+
		"Do not include any explanations or extra text.\n\n%s",
		domainInstructions[domain].pick(language),
		strings.Join(EntityTypes[domain], ", "),
		schemaText)
}

// DefaultExamples picks the few-shot set for a language and domain.
func DefaultExamples(language, domain string) []Example {
	persian := analysis.IsPersian(language)
	switch {
	case persian && analysis.NormalizeDomain(domain) == analysis.DomainPolice:
		return FewShotPoliceFA
	case persian:
		return FewShotFA
	default:
		return FewShotEN
	}
}

// UserPrompt builds the extraction prompt for text. Nil examples select the
// defaults for the language and domain.
func UserPrompt(text, language, domain string, examples []Example) string {
	domain = analysis.NormalizeDomain(domain)
	if len(examples) == 0 {
		examples = DefaultExamples(language, domain)
	}

	shots := make([]string, 0, len(examples))
	for _, ex := range examples {
		shots = append(shots, fmt.Sprintf("TEXT:\n%s\nJSON:\n{\"entities\":%s,\"relationships\":%s}",
			ex.Text, compactJSON(ex.Entities), compactJSON(ex.Relationships)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "LANGUAGE: %s\n", language)
	sb.WriteString("Return JSON with keys: entities, relationships. Entities need name and type.\n")
	sb.WriteString(inferenceInstructions[domain].pick(language))
	sb.WriteString("\nIf unsure, leave arrays empty.\n\n")
	fmt.Fprintf(&sb, "FEW-SHOTS:\n%s\n\n", strings.Join(shots, "\n\n"))
	fmt.Fprintf(&sb, "NOW EXTRACT FROM THIS TEXT:\n%s\n", text)
	return sb.String()
}

// RefereePrompt builds the adjudication prompt: the original text, both
// analyses and the conflicts found between them.
func RefereePrompt(text, language, domain string, rc *RefereeContext) string {
	domain = analysis.NormalizeDomain(domain)
	ctxLabel := refereeContexts[domain].pick(language)
	first := rc.First
	second := rc.Second

	var sb strings.Builder
	if analysis.IsPersian(language) {
		fmt.Fprintf(&sb, "شما یک داور متخصص برای %s هستید. دو تحلیل زیر را بررسی کنید و بهترین تحلیل نهایی را ارائه دهید.", ctxLabel)
		if note := refereeNotesFA[domain]; note != "" {
			sb.WriteString("\n" + note)
		}
		fmt.Fprintf(&sb, "\n\nمتن اصلی:\n%s\n\n", text)
		fmt.Fprintf(&sb, "تحلیل مدل اول:\nموجودیت‌ها: %s\nروابط: %s\n\n", compactJSON(first.Entities), compactJSON(first.Relationships))
		fmt.Fprintf(&sb, "تحلیل مدل دوم:\nموجودیت‌ها: %s\nروابط: %s\n\n", compactJSON(second.Entities), compactJSON(second.Relationships))
		writeConflicts(&sb, "اختلاف‌ها", rc)
		sb.WriteString("لطفاً:\n" +
			"1. موجودیت‌ها و روابط هر دو تحلیل را بررسی کنید\n" +
			"2. موارد مشترک و متفاوت را شناسایی کنید\n" +
			"3. بهترین ترکیب را انتخاب کنید یا تحلیل بهتری ارائه دهید\n" +
			"4. استنتاج‌های منطقی و احتمالات را در نظر بگیرید\n" +
			"5. فقط JSON خروجی بدهید، بدون توضیح اضافی\n\n" +
			"خروجی نهایی:")
		return sb.String()
	}

	fmt.Fprintf(&sb, "You are an expert referee for %s. Review the two analyses below and provide the best final analysis.\n\n", ctxLabel)
	fmt.Fprintf(&sb, "Original text:\n%s\n\n", text)
	fmt.Fprintf(&sb, "First model analysis:\nEntities: %s\nRelationships: %s\n\n", compactJSON(first.Entities), compactJSON(first.Relationships))
	fmt.Fprintf(&sb, "Second model analysis:\nEntities: %s\nRelationships: %s\n\n", compactJSON(second.Entities), compactJSON(second.Relationships))
	writeConflicts(&sb, "Conflicts", rc)
	sb.WriteString("Please:\n" +
		"1. Review entities and relationships from both analyses\n" +
		"2. Identify common and different items\n" +
		"3. Select the best combination or provide better analysis\n" +
		"4. Output only JSON with keys entities and relationships, no additional explanations\n\n" +
		"Final output:")
	return sb.String()
}

func writeConflicts(sb *strings.Builder, label string, rc *RefereeContext) {
	if len(rc.ConflictingEntities) == 0 && len(rc.ConflictingRelationships) == 0 {
		return
	}
	sb.WriteString(label + ":\n")
	for _, c := range rc.ConflictingEntities {
		sb.WriteString("- " + c + "\n")
	}
	for _, c := range rc.ConflictingRelationships {
		sb.WriteString("- " + c + "\n")
	}
	sb.WriteString("\n")
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
