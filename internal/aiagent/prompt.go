package aiagent

import "strings"

// Divert-reason openings. The assistant speaks Russian: the CRM's customer
// base is Russian-speaking and the canned sentences match the operator scripts.
var reasonSentences = map[DivertReason]string{
	ReasonAfterHours: "Звонок поступил в нерабочее время.",
	ReasonNoAnswer:   "Менеджер не ответил на звонок.",
	ReasonBusy:       "Менеджер сейчас разговаривает по другой линии.",
	ReasonOverflow:   "Все менеджеры сейчас заняты.",
}

// BuildSystemPrompt constructs the system prompt for a diverted call. Both
// agent platforms share this template; only voice/model wiring differs per
// adapter.
func BuildSystemPrompt(agentCtx AgentContext) string {
	var b strings.Builder

	company := agentCtx.CompanyName
	if company == "" {
		company = "компании"
	}
	b.WriteString("Ты — вежливый голосовой ассистент ")
	b.WriteString(company)
	b.WriteString(". Поздоровайся с собеседником и представься.\n\n")

	if sentence, ok := reasonSentences[agentCtx.Reason]; ok {
		b.WriteString(sentence)
		b.WriteString(" Объясни это звонящему.\n\n")
	}

	if agentCtx.ContactName != "" {
		b.WriteString("Звонящий: ")
		b.WriteString(agentCtx.ContactName)
		if agentCtx.ContactCompany != "" {
			b.WriteString(" (")
			b.WriteString(agentCtx.ContactCompany)
			b.WriteString(")")
		}
		b.WriteString(". Обращайся по имени.\n")
	}
	if agentCtx.ManagerName != "" {
		b.WriteString("Ответственный менеджер: ")
		b.WriteString(agentCtx.ManagerName)
		b.WriteString(".\n")
	}
	if len(agentCtx.CallHistory) > 0 {
		b.WriteString("История последних обращений:\n")
		for _, entry := range agentCtx.CallHistory {
			b.WriteString("- ")
			b.WriteString(entry)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nПредложи звонящему на выбор: оставить голосовое сообщение, ")
	b.WriteString("заказать обратный звонок или соединить с дежурным сотрудником, ")
	b.WriteString("если вопрос срочный.\n\n")
	b.WriteString("В конце разговора обязательно составь краткое резюме: ")
	b.WriteString("кто звонил, по какому вопросу и какое действие согласовано.")

	return b.String()
}
