package prompts

const resultSpec = `Retourne STRICTEMENT et EXCLUSIVEMENT un JSON conforme à ce format :
{
  "notes": [{"critère": "...", "score": 1, "justification": "..."}],
  "synthese": 0.5,
  "prise_en_charge": 1.0,
  "note_finale": 15.5,
  "commentaire": "..."
}

Contraintes :
- "notes" contient une entrée par critère de la grille, avec le libellé du critère recopié à l'identique.
- "score" est compris entre 0 et le nombre de points du critère.
- "synthese" et "prise_en_charge" sont compris entre 0 et 1.
- "note_finale" est comprise entre 0 et %d.

Aucun texte supplémentaire hors du JSON ne doit être ajouté.`
