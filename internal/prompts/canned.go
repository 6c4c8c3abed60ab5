package prompts

import (
	"fmt"
	"strings"
)

// Customer-facing fallback messages. These are sent verbatim and must
// never carry technical detail.

// ApologyText is sent when the reasoning engine could not produce any
// draft for the turn.
func ApologyText(contact string) string {
	return fmt.Sprintf("Desculpe, tive um problema para processar sua mensagem agora. "+
		"Pode tentar novamente em instantes ou falar com %s?", contact)
}

// ReviewFallbackText replaces a draft the reviewer rejected without
// supplying a usable correction.
func ReviewFallbackText(contact string) string {
	return fmt.Sprintf("Desculpe, não consegui confirmar essas informações com segurança. "+
		"Por favor, fale com %s para finalizarmos seu atendimento.", contact)
}

// RetryText replaces a reply when none of the planned actions succeeded.
func RetryText(pending []string) string {
	return fmt.Sprintf("Não consegui concluir %s. Vamos tentar de novo? "+
		"Me confirme o serviço, a data e o horário que você prefere.", joinPT(pending))
}

// PartialText replaces a reply when only part of the plan succeeded. It
// names what was confirmed and asks the customer to reconfirm the rest.
func PartialText(succeeded, pending []string) string {
	return fmt.Sprintf("Confirmei %s. Não consegui concluir %s: "+
		"pode me reconfirmar a data e o horário?", joinPT(succeeded), joinPT(pending))
}

// joinPT joins items as "a", "a e b", "a, b e c".
func joinPT(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " e " + items[len(items)-1]
}
