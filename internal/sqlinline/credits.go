package sqlinline

// Balance floor check and transaction insert in one statement: either both
// take effect or neither does. Zero rows means insufficient balance (or no
// balance row at all, which is the same thing).
const QChargeIfSufficient = `--sql cf340d9f-25ff-4802-b0de-6a56b98ecaa8
with charged as (
    update user_credits
    set balance = balance - $2::bigint, updated_at = now()
    where user_id = $1::uuid and balance >= $2::bigint
    returning user_id
)
insert into credit_transactions (id, user_id, amount, type, reference_id, metadata, created_at)
select $4::uuid, user_id, -$2::bigint, 'USAGE', $3::text, coalesce($5::jsonb, '{}'::jsonb), now()
from charged
returning id;
`

// Idempotent credit: a duplicate reference_id inserts nothing, bumps
// nothing and returns zero rows. The caller resolves the existing
// transaction with a follow-up select; reading it here would run on the
// statement snapshot, which under two exactly-concurrent credits predates
// the winner's commit and comes back empty.
const QCreditIdempotent = `--sql 41c2e9d8-07af-4b63-8f25-6e9c13d07a54
with applied as (
    insert into credit_transactions (id, user_id, amount, type, reference_id, metadata, created_at)
    values ($4::uuid, $1::uuid, $2::bigint, $3::text, $5::text, coalesce($6::jsonb, '{}'::jsonb), now())
    on conflict (reference_id) do nothing
    returning id
),
bumped as (
    insert into user_credits (user_id, balance, updated_at)
    select $1::uuid, $2::bigint, now() from applied
    on conflict (user_id) do update
        set balance = user_credits.balance + excluded.balance, updated_at = now()
    returning user_id
)
select id from applied;
`

const QSelectBalance = `--sql 94886ead-c2b1-41a2-96d7-498a4cc6fc9d
select coalesce((select balance from user_credits where user_id = $1::uuid), 0);
`

const QSelectTransactionByReference = `--sql e4592c94-e0fa-49b5-b665-a2fbaaaca7cb
select id, user_id, amount, type, reference_id, metadata, created_at
from credit_transactions
where reference_id = $1::text;
`

const QListTransactions = `--sql 2bfbb8d6-feee-4df6-aa5c-0c365fb7e633
select id, user_id, amount, type, reference_id, metadata, created_at
from credit_transactions
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
