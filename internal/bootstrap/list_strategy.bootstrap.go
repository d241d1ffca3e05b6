package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/krobus00/bot-service/internal/bot"
	"github.com/krobus00/bot-service/internal/config"
	"github.com/krobus00/bot-service/internal/entity"
	"github.com/krobus00/bot-service/internal/eventbus"
	"github.com/krobus00/bot-service/internal/order"
	"github.com/krobus00/bot-service/internal/registry"
	"github.com/krobus00/bot-service/internal/repository"
	"github.com/krobus00/bot-service/internal/service/strategy/grid"
	"github.com/krobus00/bot-service/internal/util"
)

var (
	listTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63"))
	listBorderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
	listMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	listKeyStyle   = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("39"))
)

// ListStrategy prints the available strategy kinds and every configured bot
// with the handlers its registry declares. Nothing is started.
func ListStrategy(cfg *config.EnvConfig, out io.Writer) {
	manager := order.NewManager(eventbus.NewQueue[entity.OrderCreationEvent](1), repository.NewMemoryOrderStore(), 0)
	strategies, err := buildStrategies(context.Background(), cfg, strategyDeps{
		orders:    manager,
		gridStore: grid.NewMemoryStateStore(),
	})
	util.ContinueOrFatal(err)

	_, _ = fmt.Fprintln(out, renderStrategies(strategyNames(), strategies))
}

func renderStrategies(kinds []string, strategies []bot.Strategy) string {
	sections := []string{
		listTitleStyle.Render("strategies"),
		listMutedStyle.Render(strings.Join(kinds, ", ")),
	}

	if len(strategies) == 0 {
		sections = append(sections, listMutedStyle.Render("no bots configured"))
	}

	for _, s := range strategies {
		lines := []string{
			listTitleStyle.Render(s.BotID()),
			listKeyStyle.Render("strategy") + s.Name(),
		}
		for _, entry := range s.Registry().Subscriptions() {
			lines = append(lines, listKeyStyle.Render("subscription")+fmt.Sprintf("%s -> %s", registry.Describe(entry.Subscription), entry.Name))
		}
		for _, entry := range s.Registry().Timers() {
			lines = append(lines, listKeyStyle.Render("timer")+fmt.Sprintf("every %s -> %s", entry.Interval, entry.Name))
		}

		sections = append(sections, listBorderStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
