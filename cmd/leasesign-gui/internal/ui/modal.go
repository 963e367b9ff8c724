// Package ui lays out the signing modal.
package ui

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"gioui.org/font"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"

	"leasesign/cmd/leasesign-gui/internal/theme"
	"leasesign/internal/field"
	"leasesign/internal/signing"
	"leasesign/internal/wizard"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

// Runner executes blocking shell calls off the frame loop.
type Runner func(name string, fn func())

// Modal is the signing dialog: review, sign and confirm steps around one
// signing.Shell.
type Modal struct {
	ctx     context.Context
	theme   *theme.Theme
	shell   *signing.Shell
	run     Runner
	onClose func()

	doc *DocumentView
	pad *SignaturePad

	closeBtn, retryBtn, beginBtn, backBtn, confirmBtn, submitBtn widget.Clickable
	clearBtn, undoBtn, adoptBtn, applyBtn, resetBtn              widget.Clickable
	prevBtn, nextBtn, nextIncompleteBtn, doneBtn                 widget.Clickable

	fieldList  widget.List
	fieldLinks []widget.Clickable
	valueEd    widget.Editor
	valueFor   string
	nameEd     widget.Editor
	emailEd    widget.Editor
	signerInit bool
	consent    widget.Bool

	notice string
}

// NewModal builds the modal for sh. onClose runs after the user dismisses
// it; blocking work is handed to run.
func NewModal(ctx context.Context, th *theme.Theme, sh *signing.Shell, run Runner, onClose func()) *Modal {
	m := &Modal{
		ctx:       ctx,
		theme:     th,
		shell:     sh,
		run:       run,
		onClose:   onClose,
		doc:       NewDocumentView(sh),
		pad:       NewSignaturePad(sh.Pad()),
		fieldList: widget.List{List: layout.List{Axis: layout.Vertical}},
	}
	m.valueEd.SingleLine, m.valueEd.Submit = true, true
	m.nameEd.SingleLine = true
	m.emailEd.SingleLine = true
	return m
}

// Changed tells the modal the shell state moved. Safe from any goroutine.
func (m *Modal) Changed() { m.pad.Invalidate() }

// Layout renders the modal over a dimmed backdrop.
func (m *Modal) Layout(gtx C) D {
	v := m.shell.View()
	m.update(gtx, v)

	paint.Fill(gtx.Ops, m.theme.Palette.Backdrop)
	return layout.Center.Layout(gtx, func(gtx C) D {
		maxSize := image.Pt(gtx.Dp(1100), gtx.Dp(820))
		gtx.Constraints.Max = image.Pt(min(gtx.Constraints.Max.X-gtx.Dp(32), maxSize.X), min(gtx.Constraints.Max.Y-gtx.Dp(32), maxSize.Y))
		gtx.Constraints.Min = gtx.Constraints.Max

		rr := clip.UniformRRect(image.Rectangle{Max: gtx.Constraints.Max}, gtx.Dp(m.theme.Config.CornerRadius))
		paint.FillShape(gtx.Ops, m.theme.Palette.Surface, rr.Op(gtx.Ops))
		defer rr.Push(gtx.Ops).Pop()

		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D { return m.layoutHeader(gtx, v) }),
			layout.Rigid(m.divider),
			layout.Flexed(1, func(gtx C) D { return m.layoutBody(gtx, v) }),
			layout.Rigid(m.divider),
			layout.Rigid(func(gtx C) D { return m.layoutFooter(gtx, v) }),
		)
	})
}

// update processes widget events before anything is drawn.
func (m *Modal) update(gtx C, v signing.View) {
	if m.closeBtn.Clicked(gtx) || m.doneBtn.Clicked(gtx) {
		m.shell.Close()
		if m.onClose != nil {
			m.onClose()
		}
		return
	}
	if m.retryBtn.Clicked(gtx) {
		m.notice = ""
		m.run("open", func() { _ = m.shell.Open(m.ctx) })
	}

	m.act(gtx, &m.beginBtn, m.shell.BeginSigning)
	m.act(gtx, &m.backBtn, m.shell.Back)
	m.act(gtx, &m.confirmBtn, m.shell.Confirm)

	if m.submitBtn.Clicked(gtx) {
		m.notice = ""
		m.run("submit", func() { _ = m.shell.Submit(m.ctx) })
	}

	if m.prevBtn.Clicked(gtx) {
		m.shell.PrevField()
		m.doc.ScrollToField()
	}
	if m.nextBtn.Clicked(gtx) {
		m.shell.NextField()
		m.doc.ScrollToField()
	}
	if m.nextIncompleteBtn.Clicked(gtx) && m.shell.NextIncomplete() {
		m.doc.ScrollToField()
	}
	if len(m.fieldLinks) != len(v.Fields) {
		m.fieldLinks = make([]widget.Clickable, len(v.Fields))
	}
	for i := range m.fieldLinks {
		if m.fieldLinks[i].Clicked(gtx) {
			m.shell.GoToField(i)
			m.doc.ScrollToField()
		}
	}

	if m.clearBtn.Clicked(gtx) {
		m.shell.Pad().Clear()
	}
	if m.undoBtn.Clicked(gtx) {
		m.shell.Pad().Undo()
	}
	if m.adoptBtn.Clicked(gtx) {
		m.notice = signing.UserMessage(m.shell.AdoptSignature(m.ctx))
		if m.notice == "" && m.shell.NextIncomplete() {
			m.doc.ScrollToField()
		}
	}
	if m.resetBtn.Clicked(gtx) && v.CurrentField < len(v.Fields) {
		m.shell.ResetField(m.ctx, v.Fields[v.CurrentField].ID)
	}

	m.updateValueEditor(gtx, v)
	m.updateSigner(gtx, v)
	if m.consent.Update(gtx) {
		m.shell.SetConsent(m.consent.Value)
	}
}

func (m *Modal) act(gtx C, btn *widget.Clickable, fn func() error) {
	if btn.Clicked(gtx) {
		m.notice = signing.UserMessage(fn())
	}
}

func (m *Modal) updateValueEditor(gtx C, v signing.View) {
	cur, ok := currentField(v)
	if !ok || cur.Type.Drawn() {
		return
	}
	if m.valueFor != cur.ID {
		m.valueFor = cur.ID
		text := ""
		if cur.Value != nil {
			text = *cur.Value
		}
		m.valueEd.SetText(text)
	}
	submitted := m.applyBtn.Clicked(gtx)
	for {
		e, ok := m.valueEd.Update(gtx)
		if !ok {
			break
		}
		if _, ok := e.(widget.SubmitEvent); ok {
			submitted = true
		}
	}
	if submitted {
		m.notice = signing.UserMessage(m.shell.SetValue(m.ctx, cur.ID, m.valueEd.Text()))
	}
}

func (m *Modal) updateSigner(gtx C, v signing.View) {
	if !m.signerInit && v.Phase == signing.PhaseReady {
		m.signerInit = true
		m.nameEd.SetText(v.SignerName)
		m.emailEd.SetText(v.SignerEmail)
		m.consent.Value = v.Consent
	}
	changed := false
	for _, ed := range []*widget.Editor{&m.nameEd, &m.emailEd} {
		for {
			e, ok := ed.Update(gtx)
			if !ok {
				break
			}
			if _, ok := e.(widget.ChangeEvent); ok {
				changed = true
			}
		}
	}
	if changed {
		m.shell.SetSigner(m.nameEd.Text(), m.emailEd.Text())
	}
}

func currentField(v signing.View) (field.Field, bool) {
	if v.CurrentField < 0 || v.CurrentField >= len(v.Fields) {
		return field.Field{}, false
	}
	return v.Fields[v.CurrentField], true
}

func (m *Modal) divider(gtx C) D {
	size := image.Pt(gtx.Constraints.Max.X, gtx.Dp(1))
	paint.FillShape(gtx.Ops, m.theme.Palette.Border, clip.Rect{Max: size}.Op())
	return D{Size: size}
}

func (m *Modal) layoutHeader(gtx C, v signing.View) D {
	th := m.theme
	return layout.UniformInset(th.Config.Padding).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
					layout.Flexed(1, func(gtx C) D {
						title := v.DocumentTitle
						if title == "" {
							title = "Sign lease"
						}
						l := material.H6(th.Theme, title)
						l.TextSize = th.Config.FontTitle
						return l.Layout(gtx)
					}),
					layout.Rigid(func(gtx C) D {
						return material.Button(th.Theme, &m.closeBtn, "Close").Layout(gtx)
					}),
				)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D { return m.layoutSteps(gtx, v) }),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				bar := material.ProgressBar(th.Theme, float32(v.Progress.Percent/100))
				bar.Color = th.Palette.Primary
				bar.TrackColor = th.Palette.Background
				return bar.Layout(gtx)
			}),
		)
	})
}

func (m *Modal) layoutSteps(gtx C, v signing.View) D {
	th := m.theme
	steps := []wizard.Step{wizard.StepReview, wizard.StepSign, wizard.StepConfirm}
	children := make([]layout.FlexChild, 0, len(steps)+1)
	for i, st := range steps {
		label := fmt.Sprintf("%d. %s", i+1, st.Title())
		col := th.Palette.TextMuted
		weight := font.Normal
		switch {
		case st == v.Step:
			col, weight = th.Palette.Primary, font.Bold
		case st.Index() < v.Step.Index():
			col = th.Palette.Success
		}
		children = append(children, layout.Rigid(func(gtx C) D {
			return layout.Inset{Right: 24}.Layout(gtx, func(gtx C) D {
				l := material.Body2(th.Theme, label)
				l.Color, l.Font.Weight = col, weight
				return l.Layout(gtx)
			})
		}))
	}
	children = append(children, layout.Flexed(1, func(gtx C) D {
		return layout.E.Layout(gtx, func(gtx C) D {
			l := material.Caption(th.Theme, fmt.Sprintf("%d%% complete", v.Progress.Rounded))
			l.Color = th.Palette.TextMuted
			return l.Layout(gtx)
		})
	}))
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx, children...)
}

func (m *Modal) layoutBody(gtx C, v signing.View) D {
	switch v.Phase {
	case signing.PhaseLoading:
		return layout.Center.Layout(gtx, func(gtx C) D {
			gtx.Constraints.Max = image.Pt(gtx.Dp(48), gtx.Dp(48))
			return material.Loader(m.theme.Theme).Layout(gtx)
		})
	case signing.PhaseFailed:
		return m.message(gtx, "Unable to load this lease", v.Error, m.theme.Palette.Error)
	case signing.PhaseSubmitted:
		return m.message(gtx, "Lease signed", "Your signature has been submitted. You can close this window.", m.theme.Palette.Success)
	case signing.PhaseClosed:
		return D{Size: gtx.Constraints.Max}
	}

	switch v.Step {
	case wizard.StepSign:
		return layout.Flex{}.Layout(gtx,
			layout.Flexed(0.55, func(gtx C) D { return m.doc.Layout(gtx, m.theme, v) }),
			layout.Rigid(func(gtx C) D {
				size := image.Pt(gtx.Dp(1), gtx.Constraints.Max.Y)
				paint.FillShape(gtx.Ops, m.theme.Palette.Border, clip.Rect{Max: size}.Op())
				return D{Size: size}
			}),
			layout.Flexed(0.45, func(gtx C) D { return m.layoutSignPanel(gtx, v) }),
		)
	case wizard.StepConfirm:
		return m.layoutConfirm(gtx, v)
	}
	return m.doc.Layout(gtx, m.theme, v)
}

func (m *Modal) message(gtx C, title, body string, col color.NRGBA) D {
	th := m.theme
	return layout.Center.Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical, Alignment: layout.Middle}.Layout(gtx,
			layout.Rigid(func(gtx C) D {
				l := material.H6(th.Theme, title)
				l.Color = col
				return l.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(material.Body1(th.Theme, body).Layout),
		)
	})
}

func (m *Modal) layoutSignPanel(gtx C, v signing.View) D {
	th := m.theme
	cur, ok := currentField(v)
	return layout.UniformInset(th.Config.Padding).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Flexed(1, func(gtx C) D { return m.layoutFieldList(gtx, v) }),
			layout.Rigid(layout.Spacer{Height: th.Config.Padding}.Layout),
			layout.Rigid(func(gtx C) D {
				if !ok {
					return D{}
				}
				l := material.Subtitle1(th.Theme, cur.Label)
				l.Font.Weight = font.Bold
				return l.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				if !ok {
					return D{}
				}
				if cur.Type.Drawn() {
					return m.layoutPadControls(gtx, cur)
				}
				return m.layoutValueInput(gtx, cur)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				return layout.Flex{Spacing: layout.SpaceBetween}.Layout(gtx,
					layout.Rigid(m.textButton(&m.prevBtn, "Previous", true)),
					layout.Rigid(m.textButton(&m.nextIncompleteBtn, "Next incomplete", len(v.Missing) > 0)),
					layout.Rigid(m.textButton(&m.nextBtn, "Next", true)),
				)
			}),
		)
	})
}

func (m *Modal) layoutFieldList(gtx C, v signing.View) D {
	th := m.theme
	return material.List(th.Theme, &m.fieldList).Layout(gtx, len(v.Fields), func(gtx C, i int) D {
		f := v.Fields[i]
		if i >= len(m.fieldLinks) {
			return D{}
		}
		return material.Clickable(gtx, &m.fieldLinks[i], func(gtx C) D {
			if i == v.CurrentField {
				rect := clip.Rect{Max: image.Pt(gtx.Constraints.Max.X, gtx.Dp(32))}
				paint.FillShape(gtx.Ops, th.Palette.Highlight, rect.Op())
			}
			return layout.Inset{Top: 6, Bottom: 6, Left: 8, Right: 8}.Layout(gtx, func(gtx C) D {
				mark, col := "○", th.Palette.TextMuted
				if f.Completed {
					mark, col = "●", th.Palette.Success
				}
				label := f.Label
				if label == "" {
					label = f.ID
				}
				if !f.Required {
					label += " (optional)"
				}
				return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
					layout.Rigid(func(gtx C) D {
						l := material.Body2(th.Theme, mark)
						l.Color = col
						return l.Layout(gtx)
					}),
					layout.Rigid(layout.Spacer{Width: 8}.Layout),
					layout.Flexed(1, material.Body2(th.Theme, label).Layout),
				)
			})
		})
	})
}

func (m *Modal) layoutPadControls(gtx C, cur field.Field) D {
	th := m.theme
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx C) D { return m.pad.Layout(gtx, th) }),
		layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
		layout.Rigid(func(gtx C) D {
			empty := m.shell.Pad().IsEmpty()
			adopt := "Adopt signature"
			if cur.Type == field.TypeInitial {
				adopt = "Adopt initials"
			}
			return layout.Flex{Spacing: layout.SpaceEnd}.Layout(gtx,
				layout.Rigid(m.textButton(&m.undoBtn, "Undo", !empty)),
				layout.Rigid(layout.Spacer{Width: th.Config.Spacing}.Layout),
				layout.Rigid(m.textButton(&m.clearBtn, "Clear", !empty)),
				layout.Rigid(layout.Spacer{Width: th.Config.Spacing}.Layout),
				layout.Rigid(m.textButton(&m.resetBtn, "Re-sign", cur.Completed)),
				layout.Flexed(1, func(gtx C) D {
					return layout.E.Layout(gtx, m.primaryButton(&m.adoptBtn, adopt, !empty))
				}),
			)
		}),
	)
}

func (m *Modal) layoutValueInput(gtx C, cur field.Field) D {
	th := m.theme
	hint := "Type a value"
	if cur.Type == field.TypeDate {
		hint = "Date"
	}
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			return m.bordered(gtx, func(gtx C) D {
				return material.Editor(th.Theme, &m.valueEd, hint).Layout(gtx)
			})
		}),
		layout.Rigid(layout.Spacer{Width: th.Config.Spacing}.Layout),
		layout.Rigid(m.primaryButton(&m.applyBtn, "Apply", true)),
	)
}

func (m *Modal) layoutConfirm(gtx C, v signing.View) D {
	th := m.theme
	return layout.UniformInset(th.Config.Padding).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(material.Subtitle1(th.Theme, "Confirm and submit").Layout),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				done := 0
				for _, f := range v.Fields {
					if f.Completed {
						done++
					}
				}
				l := material.Body2(th.Theme, fmt.Sprintf("%d of %d fields completed.", done, len(v.Fields)))
				l.Color = th.Palette.TextMuted
				return l.Layout(gtx)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Padding}.Layout),
			layout.Rigid(func(gtx C) D {
				return m.bordered(gtx, material.Editor(th.Theme, &m.nameEd, "Full legal name").Layout)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				return m.bordered(gtx, material.Editor(th.Theme, &m.emailEd, "Email").Layout)
			}),
			layout.Rigid(layout.Spacer{Height: th.Config.Padding}.Layout),
			layout.Rigid(material.CheckBox(th.Theme, &m.consent,
				"I agree to sign this lease electronically and that my electronic signature is legally binding.").Layout),
			layout.Rigid(layout.Spacer{Height: th.Config.Spacing}.Layout),
			layout.Rigid(func(gtx C) D {
				if v.Blocked == "" {
					return D{}
				}
				l := material.Body2(th.Theme, v.Blocked)
				l.Color = th.Palette.Warning
				return l.Layout(gtx)
			}),
		)
	})
}

func (m *Modal) layoutFooter(gtx C, v signing.View) D {
	th := m.theme
	return layout.UniformInset(th.Config.Padding).Layout(gtx, func(gtx C) D {
		var left, right []layout.FlexChild
		switch {
		case v.Phase == signing.PhaseFailed:
			right = append(right, layout.Rigid(m.primaryButton(&m.retryBtn, "Try again", true)))
		case v.Phase == signing.PhaseSubmitted:
			right = append(right, layout.Rigid(m.primaryButton(&m.doneBtn, "Done", true)))
		case v.Phase == signing.PhaseLoading || v.Phase == signing.PhaseClosed:
		case v.Step == wizard.StepReview:
			right = append(right, layout.Rigid(m.primaryButton(&m.beginBtn, "Begin signing", true)))
		case v.Step == wizard.StepSign:
			left = append(left, layout.Rigid(m.textButton(&m.backBtn, "Back", true)))
			right = append(right, layout.Rigid(m.primaryButton(&m.confirmBtn, "Continue", len(v.Missing) == 0)))
		case v.Step == wizard.StepConfirm:
			left = append(left, layout.Rigid(m.textButton(&m.backBtn, "Back", !v.Submitting)))
			label := "Submit signature"
			if v.Submitting {
				label = "Submitting…"
			}
			right = append(right, layout.Rigid(m.primaryButton(&m.submitBtn, label, v.CanSubmit)))
		}

		notice := m.notice
		if notice == "" && v.Phase == signing.PhaseReady {
			notice = v.Error
		}
		children := append(left, layout.Flexed(1, func(gtx C) D {
			return layout.Center.Layout(gtx, func(gtx C) D {
				l := material.Body2(th.Theme, notice)
				l.Color = th.Palette.Error
				return l.Layout(gtx)
			})
		}))
		children = append(children, right...)
		return layout.Flex{Alignment: layout.Middle}.Layout(gtx, children...)
	})
}

func (m *Modal) bordered(gtx C, w layout.Widget) D {
	th := m.theme
	return widget.Border{Color: th.Palette.Border, CornerRadius: th.Config.CornerRadius, Width: unit.Dp(1)}.Layout(gtx, func(gtx C) D {
		return layout.UniformInset(8).Layout(gtx, w)
	})
}

func (m *Modal) primaryButton(btn *widget.Clickable, label string, enabled bool) layout.Widget {
	return func(gtx C) D {
		if !enabled {
			gtx = gtx.Disabled()
		}
		b := material.Button(m.theme.Theme, btn, label)
		b.CornerRadius = m.theme.Config.CornerRadius
		if !enabled {
			b.Background = m.theme.Palette.Border
		}
		return b.Layout(gtx)
	}
}

func (m *Modal) textButton(btn *widget.Clickable, label string, enabled bool) layout.Widget {
	return func(gtx C) D {
		if !enabled {
			gtx = gtx.Disabled()
		}
		b := material.Button(m.theme.Theme, btn, label)
		b.Background = m.theme.Palette.Background
		b.Color = m.theme.Palette.Text
		b.CornerRadius = m.theme.Config.CornerRadius
		return b.Layout(gtx)
	}
}
