package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gauntletci/gauntlet/internal/domain"
)

type screen int

const (
	screenHome screen = iota
	screenPipelines
	screenEnvs
	screenResults
	screenPlaceholder
)

type menuItem struct {
	title string
	desc  string
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

type pipelineItem struct {
	ref domain.PipelineRef
}

func (p pipelineItem) Title() string       { return p.ref.Name }
func (p pipelineItem) Description() string { return p.ref.Path }
func (p pipelineItem) FilterValue() string { return p.ref.Name }

type model struct {
	theme Theme
	deps  Deps

	scr        screen
	menu       list.Model
	pipelines  list.Model
	activeName string

	cwd            string
	workspaceFound bool
	workspaceRoot  string

	envs    []domain.EnvironmentRef
	preview string
	toast   string

	running  bool
	runnerCh chan runnerDoneMsg
	run      domain.RunArtifact
	runID    string
	runErr   error
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, deps.Logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()

	items := []list.Item{
		menuItem{"Run", "Execute a pipeline's build matrix"},
		menuItem{"Pipelines", "Browse and run YAML pipelines"},
		menuItem{"Environments", "Manage env vars and secrets"},
		menuItem{"Runs", "Browse saved run artifacts (coming soon)"},
		menuItem{"Settings", "Workspace and defaults"},
		menuItem{"Quit", "Exit Gauntlet"},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Gauntlet"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	pl := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	pl.Title = "Pipelines"
	pl.SetShowStatusBar(false)
	pl.SetFilteringEnabled(true)
	pl.SetShowHelp(false)

	return model{
		theme:     t,
		deps:      deps,
		scr:       screenHome,
		menu:      l,
		pipelines: pl,
	}
}

// Init kicks off the async workspace discovery; the banner updates when
// workspaceRefreshedMsg lands.
func (m model) Init() tea.Cmd { return cmdRefreshWorkspace(m.deps) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w, h := msg.Width, msg.Height
		m.menu.SetSize(w-4, h-10)
		m.pipelines.SetSize(w-4, h-12)
		return m, nil

	case workspaceRefreshedMsg:
		m.cwd = msg.cwd
		m.workspaceFound = msg.found
		m.workspaceRoot = msg.root
		return m, nil

	case initWorkspaceDoneMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.workspaceFound = true
		m.workspaceRoot = msg.root
		m.toast = ""
		return m, nil

	case envsLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.envs = msg.refs
		return m, nil

	case pipelinesLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.refs))
		for _, r := range msg.refs {
			items = append(items, pipelineItem{ref: r})
		}
		m.pipelines.SetItems(items)
		return m, nil

	case pipelinePreviewMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.preview = msg.preview
		return m, nil

	case runnerDoneMsg:
		m.running = false
		m.run = msg.run
		m.runID = msg.id
		m.runErr = msg.err
		m.scr = screenResults
		if msg.err != nil {
			m.toast = userMessage(msg.err)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.scr == screenHome {
				return m, tea.Quit
			}
			if !m.running {
				m.scr = screenHome
				m.activeName = ""
				m.toast = ""
				return m, nil
			}
			return m, nil

		case "enter":
			switch m.scr {
			case screenHome:
				it, ok := m.menu.SelectedItem().(menuItem)
				if !ok {
					return m, nil
				}
				switch {
				case strings.EqualFold(it.title, "Quit"):
					return m, tea.Quit
				case strings.EqualFold(it.title, "Run"),
					strings.EqualFold(it.title, "Pipelines"):
					if !m.workspaceFound {
						m.toast = "No workspace found. Press i to create one here."
						return m, nil
					}
					m.scr = screenPipelines
					m.activeName = it.title
					return m, cmdLoadPipelines(m.workspaceRoot)
				case strings.EqualFold(it.title, "Environments"):
					if !m.workspaceFound {
						m.toast = "No workspace found. Press i to create one here."
						return m, nil
					}
					m.scr = screenEnvs
					m.activeName = it.title
					return m, cmdLoadEnvironments(m.workspaceRoot)
				default:
					m.scr = screenPlaceholder
					m.activeName = it.title
					return m, nil
				}

			case screenPipelines:
				if m.running {
					return m, nil
				}
				it, ok := m.pipelines.SelectedItem().(pipelineItem)
				if !ok {
					return m, nil
				}
				m.running = true
				m.toast = ""
				ch, listen := startRunAsync(m.workspaceRoot, it.ref.Path, "", m.deps.Logger, m.deps.Debug)
				m.runnerCh = ch
				return m, listen
			}

		case "i":
			if m.scr == screenHome && !m.workspaceFound && m.cwd != "" {
				return m, cmdInitWorkspaceHere(m.deps, m.cwd)
			}

		case "p":
			if m.scr == screenPipelines && !m.running {
				if it, ok := m.pipelines.SelectedItem().(pipelineItem); ok {
					return m, cmdPreviewPipeline(it.ref.Path)
				}
			}

		case "esc", "b":
			if m.scr != screenHome && !m.running {
				if m.scr == screenResults {
					m.scr = screenPipelines
				} else {
					m.scr = screenHome
					m.activeName = ""
				}
				m.preview = ""
				m.toast = ""
				return m, nil
			}
		}
	}

	switch m.scr {
	case screenHome:
		var cmd tea.Cmd
		m.menu, cmd = m.menu.Update(msg)
		return m, cmd
	case screenPipelines:
		var cmd tea.Cmd
		m.pipelines, cmd = m.pipelines.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("Gauntlet") + "\n" +
		m.theme.Subtitle.Render("Local build-matrix runner — phases, checks, and uploads") + "\n"

	var workspaceBanner string
	if m.workspaceFound {
		workspaceBanner = m.theme.Help.Render(fmt.Sprintf("Workspace: %s", m.workspaceRoot))
	} else {
		workspaceBanner = m.theme.Card.Render(
			"⚠ No workspace found.\n\nPress i to create one here, or run `gauntlet init`.",
		)
	}

	var toast string
	if m.toast != "" {
		toast = "\n" + m.theme.Fail.Render(m.toast)
	}

	switch m.scr {
	case screenHome:
		help := m.theme.Help.Render("↑/↓ navigate • enter open • / search • q quit")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + m.theme.Card.Render(m.menu.View()) + "\n" + help)

	case screenPipelines:
		body := m.pipelines.View()
		if m.preview != "" {
			body += "\n\n" + m.theme.Subtitle.Render(m.preview)
		}
		status := "↑/↓ navigate • enter run • p preview • esc back"
		if m.running {
			status = "running matrix…"
		}
		help := m.theme.Help.Render(status)
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + m.theme.Card.Render(body) + "\n" + help)

	case screenEnvs:
		var b strings.Builder
		b.WriteString(m.theme.Title.Render("Environments") + "\n\n")
		if len(m.envs) == 0 {
			b.WriteString("(no environments found)")
		} else {
			for _, r := range m.envs {
				b.WriteString(fmt.Sprintf("%s\n  %s\n", r.Name, m.theme.Help.Render(r.Path)))
			}
		}
		card := m.theme.Card.Render(strings.TrimRight(b.String(), "\n"))
		help := m.theme.Help.Render("esc back • q home")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + card + "\n" + help)

	case screenResults:
		card := m.theme.Card.Render(renderRunSummary(m.theme, m.run, m.runID, m.runErr))
		help := m.theme.Help.Render("esc back • q home")
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + card + "\n" + help)

	case screenPlaceholder:
		card := m.theme.Card.Render(
			fmt.Sprintf("%s\n\n%s\n\n%s",
				m.theme.Title.Render(m.activeName),
				"This screen is a placeholder.",
				m.theme.Help.Render("esc/b back • q home"),
			),
		)
		return wrap.Render(header + "\n" + workspaceBanner + toast + "\n\n" + card)

	default:
		return wrap.Render(header + "\n" + "unknown state")
	}
}
