package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcloud/autenticador/internal/db"
)

// Repository persiste usuários, endereço, papéis e permissões no PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectUser = `
        SELECT u.id, u.email, u.name, u.status, u.type, u.details, u.phone, u.secondary_phone,
               a.id, a.zip_code, a.state, a.city, a.neighborhood, a.street, a.number, a.complement,
               COALESCE((SELECT array_agg(r.role ORDER BY r.role) FROM user_role r WHERE r.user_id = u.id), '{}'::text[]),
               COALESCE((SELECT array_agg(p.permission ORDER BY p.permission) FROM user_permission p WHERE p.user_id = u.id), '{}'::text[])
        FROM app_user u
        LEFT JOIN address a ON a.user_id = u.id
`

// Get carrega o registro completo. Retorna ErrNotFound quando não existe.
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	row := r.pool.QueryRow(ctx, selectUser+` WHERE u.id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetMany carrega os registros existentes indexados por id.
func (r *Repository) GetMany(ctx context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, selectUser+` WHERE u.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = *u
	}
	return out, rows.Err()
}

// Upsert grava o registro e seus filhos na mesma transação. Endereço nil remove o existente;
// papéis e permissões são substituídos.
func (r *Repository) Upsert(ctx context.Context, u User) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var details any
		if !u.Details.isZero() {
			raw, err := json.Marshal(u.Details)
			if err != nil {
				return err
			}
			details = raw
		}

		const upsertUser = `
            INSERT INTO app_user (id, email, name, status, type, details, phone, secondary_phone)
            VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
            ON CONFLICT (id) DO UPDATE SET
                email = EXCLUDED.email,
                name = EXCLUDED.name,
                status = EXCLUDED.status,
                type = EXCLUDED.type,
                details = EXCLUDED.details,
                phone = EXCLUDED.phone,
                secondary_phone = EXCLUDED.secondary_phone,
                updated_at = now()
        `
		if _, err := tx.Exec(ctx, upsertUser,
			u.ID,
			nullable(u.Email),
			nullable(u.Name),
			nullable(string(u.Status)),
			nullable(string(u.Type)),
			details,
			nullable(u.Phone),
			nullable(u.SecondaryPhone),
		); err != nil {
			return fmt.Errorf("gravar app_user: %w", err)
		}

		if err := upsertAddress(ctx, tx, u); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_role WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("limpar papéis: %w", err)
		}
		if len(u.Roles) > 0 {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_role (user_id, role) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
				u.ID, u.Roles); err != nil {
				return fmt.Errorf("gravar papéis: %w", err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM user_permission WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("limpar permissões: %w", err)
		}
		if len(u.Permissions) > 0 {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_permission (user_id, permission) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`,
				u.ID, u.Permissions); err != nil {
				return fmt.Errorf("gravar permissões: %w", err)
			}
		}
		return nil
	})
}

func upsertAddress(ctx context.Context, tx pgx.Tx, u User) error {
	if u.Address == nil {
		if _, err := tx.Exec(ctx, `DELETE FROM address WHERE user_id = $1`, u.ID); err != nil {
			return fmt.Errorf("remover endereço: %w", err)
		}
		return nil
	}

	a := u.Address
	const query = `
        INSERT INTO address (user_id, zip_code, state, city, neighborhood, street, number, complement)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (user_id) DO UPDATE SET
            zip_code = EXCLUDED.zip_code,
            state = EXCLUDED.state,
            city = EXCLUDED.city,
            neighborhood = EXCLUDED.neighborhood,
            street = EXCLUDED.street,
            number = EXCLUDED.number,
            complement = EXCLUDED.complement
    `
	if _, err := tx.Exec(ctx, query, u.ID, a.ZipCode, a.State, a.City, a.Neighborhood, a.Street, a.Number, a.Complement); err != nil {
		return fmt.Errorf("gravar endereço: %w", err)
	}
	return nil
}

// Search filtra por substring de nome/email (sem diferenciar maiúsculas) e pagina.
func (r *Repository) Search(ctx context.Context, params SearchParams) ([]User, int, error) {
	where := ` WHERE ($1 = '' OR u.name ILIKE '%' || $1 || '%') AND ($2 = '' OR u.email ILIKE '%' || $2 || '%')`
	name := escapeLike(params.Name)
	email := escapeLike(params.Email)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM app_user u`+where, name, email).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []User{}, 0, nil
	}

	query := selectUser + where + ` ORDER BY ` + orderBy(params) + ` LIMIT $3 OFFSET $4`
	rows, err := r.pool.Query(ctx, query, name, email, params.Size, params.Page*params.Size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]User, 0, params.Size)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *u)
	}
	return items, total, rows.Err()
}

// Count devolve o total de usuários locais.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM app_user`).Scan(&total)
	return total, err
}

var sortColumns = map[string]string{
	"id":     "u.id",
	"name":   "lower(u.name)",
	"email":  "u.email",
	"status": "u.status",
	"type":   "u.type",
}

func orderBy(params SearchParams) string {
	col, ok := sortColumns[params.Sort]
	if !ok {
		col = sortColumns["name"]
	}
	dir := "ASC"
	if params.Desc {
		dir = "DESC"
	}
	return col + " " + dir + " NULLS LAST, u.id ASC"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(strings.TrimSpace(s))
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u                                    User
		email, name, status, typ, phone, sec *string
		details                              []byte
		addrID                               *int64
		zip, state, city, hood, street, num  *string
		complement                           *string
	)
	if err := row.Scan(
		&u.ID, &email, &name, &status, &typ, &details, &phone, &sec,
		&addrID, &zip, &state, &city, &hood, &street, &num, &complement,
		&u.Roles, &u.Permissions,
	); err != nil {
		return nil, err
	}

	u.Email = deref(email)
	u.Name = deref(name)
	u.Status = Status(deref(status))
	u.Type = Type(deref(typ))
	u.Phone = deref(phone)
	u.SecondaryPhone = deref(sec)

	if len(details) > 0 {
		var d Details
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("details inválido para %s: %w", u.ID, err)
		}
		u.Details = &d
	}

	if addrID != nil {
		u.Address = &Address{
			ID:           *addrID,
			ZipCode:      deref(zip),
			State:        deref(state),
			City:         deref(city),
			Neighborhood: deref(hood),
			Street:       deref(street),
			Number:       deref(num),
			Complement:   deref(complement),
		}
	}

	u.normalize()
	return &u, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
